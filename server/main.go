package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"mtucontrol/device"
	"mtucontrol/discovery"
)

func main() {
	port := getEnv("PORT", "8081")
	motors, err := strconv.Atoi(getEnv("MTU_MOTORS", "2"))
	if err != nil || motors < 1 {
		log.Fatalf("Invalid MTU_MOTORS: %q", os.Getenv("MTU_MOTORS"))
	}

	dev := device.New(device.Config{Motors: motors})
	dev.Logf("Device simulator started with %d motors", motors)

	if getEnv("MTU_MDNS", "false") == "true" {
		portNum, err := strconv.Atoi(port)
		if err != nil {
			log.Fatalf("Invalid PORT for mDNS: %v", err)
		}
		host, _ := os.Hostname()
		shutdown, err := discovery.Advertise(fmt.Sprintf("%s-%s", "MTU", host), discovery.Service, portNum)
		if err != nil {
			log.Fatalf("Failed to advertise: %v", err)
		}
		defer shutdown()
	}

	srv := &http.Server{Addr: ":" + port, Handler: dev.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		dev.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("MTU device simulator starting on :%s...", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Println("MTU device simulator stopped.")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
