// Command accountctl seeds account records into the store the server
// reads from and mints session tokens for them. It stands in for the
// external login service during local development.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"realtime-core/auth"
	"realtime-core/domain"
	"realtime-core/internal"
	"realtime-core/repositories"
)

func main() {
	_ = godotenv.Load()

	var (
		badgerPath  = flag.String("db", "", "badger database path (defaults to BADGER_FILEPATH)")
		secret      = flag.String("secret", "", "token signing secret (defaults to TOKEN_SECRET)")
		identity    = flag.String("identity", "", "identity to create or mint a token for")
		displayName = flag.String("name", "", "display name (defaults to the identity)")
		ttl         = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	cfg := struct {
		BadgerFilepath string `env:"BADGER_FILEPATH"`
		TokenSecret    string `env:"TOKEN_SECRET"`
	}{}
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatalf("reading environment: %v", err)
	}

	if *badgerPath == "" {
		*badgerPath = cfg.BadgerFilepath
	}
	if *secret == "" {
		*secret = cfg.TokenSecret
	}
	if *identity == "" || *badgerPath == "" || *secret == "" {
		log.Fatal("identity, db path and secret are required")
	}
	if *displayName == "" {
		*displayName = *identity
	}

	db, err := badger.Open(badger.DefaultOptions(*badgerPath).WithLogger(nil))
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	users := repositories.NewUserRepository(db, internal.NewLogger("ERROR"))
	if err := users.Save(domain.Profile{Identity: *identity, DisplayName: *displayName}); err != nil {
		log.Fatalf("saving account: %v", err)
	}

	token, err := auth.GenerateToken(*secret, *identity, *ttl)
	if err != nil {
		log.Fatalf("minting token: %v", err)
	}
	fmt.Println(token)
}
