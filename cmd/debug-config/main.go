// Command debug-config loads configuration the same way the central
// system does and prints the resolved values, for verifying a profile
// and its environment-variable overrides before deploying it.
package main

import (
	"fmt"
	"os"

	"github.com/chargepoint/central-system/internal/config"
)

func main() {
	fmt.Println("=== Central System Configuration Check ===")

	fmt.Println("\n--- Environment Variables ---")
	for _, env := range []string{"APP_PROFILE", "REDIS_ADDR", "KAFKA_BROKERS", "SERVER_PORT", "LOG_LEVEL"} {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("%s = %s\n", env, v)
		} else {
			fmt.Printf("%s = (not set)\n", env)
		}
	}

	fmt.Println("\n--- Loading Configuration ---")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n--- Resolved Configuration ---")
	fmt.Printf("App: %s %s (profile=%s)\n", cfg.App.Name, cfg.App.Version, cfg.App.Profile)
	fmt.Printf("Server address: %s\n", cfg.GetServerAddr())
	fmt.Printf("WebSocket path: %s\n", cfg.Server.WebSocketPath)
	fmt.Printf("Duplicate connection policy: %s\n", cfg.WebSocket.DuplicatePolicy)
	fmt.Printf("Redis enabled: %v (addr=%s)\n", cfg.Redis.Enabled, cfg.Redis.Addr)
	fmt.Printf("Kafka enabled: %v (brokers=%v, topic=%s)\n", cfg.Kafka.Enabled, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	fmt.Printf("Log level: %s (format=%s)\n", cfg.Log.Level, cfg.Log.Format)
	fmt.Printf("Metrics addr: %s\n", cfg.Monitoring.MetricsAddr)
	fmt.Printf("Accept unknown idTags: %v\n", cfg.OCPP.AcceptUnknownTags)
	fmt.Printf("Is production: %v\n", cfg.IsProduction())

	fmt.Println("\n=== Done ===")
}
