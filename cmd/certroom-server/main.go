// Command certroom-server runs the certroom relay: a mutually-authenticated
// TLS chat server with named rooms.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"certroom/pkg/server"
)

func main() {
	configPath := flag.String("config", "~/.certroom/config.toml", "path to config file (created with defaults if missing)")
	listenAddr := flag.String("listen", "", "override listen address (host:port)")
	debug := flag.Bool("debug", false, "enable debug logging to debug.log")
	flag.Parse()

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		config.Server.ListenAddr = *listenAddr
	}

	srv, err := server.NewServer(config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if *debug {
		srv.EnableDebugLogging()
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Run until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	if err := srv.Stop(); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}
