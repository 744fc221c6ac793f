// Command devicetoken issues a bearer token for pairing a device with the
// caresync server.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prudhvinik1/caresync/internal/services"
	"github.com/spf13/pflag"
)

func main() {
	godotenv.Load()

	var (
		deviceFlag = pflag.String("device", "", "device UUID (a new one is generated when empty)")
		expiry     = pflag.Duration("expiry", 365*24*time.Hour, "token lifetime")
		secret     = pflag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret, defaults to $JWT_SECRET")
	)
	pflag.Parse()

	if *secret == "" {
		log.Fatal("a secret is required: pass --secret or set JWT_SECRET")
	}

	deviceID := uuid.New()
	if *deviceFlag != "" {
		parsed, err := uuid.Parse(*deviceFlag)
		if err != nil {
			log.Fatalf("Invalid device ID: %v", err)
		}
		deviceID = parsed
	}

	token, expiresAt, err := services.NewTokenService(*secret, *expiry).IssueDeviceToken(deviceID)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("device:  %s\n", deviceID)
	fmt.Printf("expires: %s\n", expiresAt.Format(time.RFC3339))
	fmt.Printf("token:   %s\n", token)
}
