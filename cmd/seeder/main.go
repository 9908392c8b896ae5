package main

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/quocanhngo/memento/internal/config"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/internal/repository"
	"github.com/quocanhngo/memento/migrations"
	"github.com/quocanhngo/memento/pkg/auth"
	"github.com/quocanhngo/memento/pkg/logger"
)

const demoEndpointPrefix = "https://push.example.invalid/demo/"

var demoProfiles = []struct {
	timezone string
	dob      string
	gender   model.Gender
	years    int
}{
	{"Europe/Paris", "1990-03-14", model.GenderMale, 0},
	{"Europe/Paris", "1985-11-02", model.GenderFemale, 0},
	{"America/New_York", "2000-07-21", model.GenderCustom, 95},
	{"Asia/Tokyo", "1972-01-30", model.GenderFemale, 0},
	{"Australia/Sydney", "", "", 0},
}

func main() {
	vapid := flag.Bool("vapid", false, "generate a VAPID key pair and print it as .env lines")
	token := flag.String("token", "", "print a manual-send operator token for this name")
	demo := flag.Bool("demo", false, "seed demo subscribers into the configured store")
	clearDemo := flag.Bool("clear-demo", false, "remove the demo subscribers from the configured store")
	rollback := flag.Bool("rollback", false, "revert the last PostgreSQL migration")
	flag.Parse()

	if !*vapid && *token == "" && !*demo && !*clearDemo && !*rollback {
		*demo = true
	}

	cfg := config.Load()

	if *rollback {
		rollbackMigration(cfg)
	}

	if *vapid {
		generateVAPID()
	}
	if *token != "" {
		printToken(cfg, *token)
	}
	if *demo {
		seedDemo(cfg)
	}
	if *clearDemo {
		removeDemo(cfg)
	}

	log.Println("🎉 Seeding completed!")
}

func generateVAPID() {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		log.Fatalf("❌ Failed to generate VAPID keys: %v", err)
	}
	fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
}

func printToken(cfg *config.Config, operator string) {
	if cfg.JWT.Secret == "" {
		log.Fatal("❌ JWT_SECRET must be set to issue operator tokens")
	}
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	t, err := jwtManager.GenerateToken(operator, auth.ScopeManualSend)
	if err != nil {
		log.Fatalf("❌ Failed to sign token: %v", err)
	}
	fmt.Printf("Authorization: Bearer %s\n", t)
}

func rollbackMigration(cfg *config.Config) {
	if cfg.Store.Driver != config.StoreDriverPostgres {
		log.Fatalf("❌ -rollback needs STORE_DRIVER=%s", config.StoreDriverPostgres)
	}
	if err := migrations.Rollback(cfg.DB.URL()); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func openStore(cfg *config.Config) repository.SubscriberStore {
	store, err := repository.OpenStore(context.Background(), cfg, logger.New(cfg.App.Env, cfg.App.LogLevel))
	if err != nil {
		log.Fatalf("❌ Subscription store unavailable: %v", err)
	}
	return store
}

// demoKeys returns a valid browser key pair so payload encryption succeeds;
// delivery still fails because the demo endpoints do not resolve.
func demoKeys() *model.WebPushKeys {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("❌ Failed to generate demo keys: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		log.Fatalf("❌ Failed to generate demo keys: %v", err)
	}
	return &model.WebPushKeys{
		P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(secret),
	}
}

func seedDemo(cfg *config.Config) {
	ctx := context.Background()
	store := openStore(cfg)

	log.Printf("🌱 Seeding %d demo subscribers...", len(demoProfiles))
	for i, p := range demoProfiles {
		endpoint := fmt.Sprintf("%s%d", demoEndpointPrefix, i+1)

		sub, err := model.NewSubscriber(model.SubscribeRequest{
			Subscription: &model.PushSubscriptionObject{
				Endpoint: endpoint,
				Keys:     demoKeys(),
			},
			Timezone: p.timezone,
		}, cfg.Schedule.DefaultTimezone, time.Now())
		if err != nil {
			log.Printf("❌ Invalid demo subscriber %d: %v", i+1, err)
			continue
		}
		if _, err := store.Upsert(ctx, sub); err != nil {
			log.Printf("❌ Failed to save %s: %v", endpoint, err)
			continue
		}

		if p.dob != "" {
			gender := p.gender
			patch := model.PreferencesPatch{DateOfBirth: &p.dob, Gender: &gender}
			if p.years > 0 {
				years := p.years
				patch.CustomLifeExpectancyYears = &years
			}
			if _, err := store.UpdatePreferences(ctx, endpoint, patch); err != nil {
				log.Printf("❌ Failed to set preferences for %s: %v", endpoint, err)
				continue
			}
		}
		log.Printf("✅ Seeded %s (%s)", endpoint, sub.Timezone)
	}
	log.Println("⚠️  Demo endpoints are unreachable; run seeder -clear-demo before enabling real sends")
}

func removeDemo(cfg *config.Config) {
	ctx := context.Background()
	store := openStore(cfg)

	for i := range demoProfiles {
		endpoint := fmt.Sprintf("%s%d", demoEndpointPrefix, i+1)
		if err := store.Remove(ctx, endpoint); err != nil {
			log.Printf("❌ Failed to remove %s: %v", endpoint, err)
			continue
		}
		log.Printf("🧹 Removed %s", endpoint)
	}
}
