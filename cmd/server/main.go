package main

import (
	"context"
	"log"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pythonsolidity/mindmint/internal/idempotency"
	"github.com/pythonsolidity/mindmint/internal/ledger/evm"
	"github.com/pythonsolidity/mindmint/internal/mint"
	"github.com/pythonsolidity/mindmint/internal/reconcile"
	"github.com/pythonsolidity/mindmint/internal/store"
	"github.com/pythonsolidity/mindmint/pkg/db"
)

const defaultContract = "0x40c9f95c6c4a1770a38549ce8c07bb6d7a706897"

func main() {
	rpcURL := os.Getenv("SEPOLIA_RPC_URL")
	if rpcURL == "" {
		log.Fatal("SEPOLIA_RPC_URL is required")
	}
	keyHex := os.Getenv("PRIVATE_KEY")
	if keyHex == "" {
		log.Fatal("PRIVATE_KEY is required")
	}
	contract := getenv("CONTRACT_ADDRESS", defaultContract)
	if !common.IsHexAddress(contract) {
		log.Fatalf("CONTRACT_ADDRESS %q is not a valid address", contract)
	}
	chainID := big.NewInt(envInt64("CHAIN_ID", 11155111)) // Sepolia
	port := getenv("SERVICE_PORT", "8080")
	confirmTimeout := time.Duration(envInt64("CONFIRM_TIMEOUT_SECONDS", 90)) * time.Second
	reconcileEvery := time.Duration(envInt64("RECONCILE_INTERVAL_SECONDS", 60)) * time.Second

	client, err := evm.Dial(rpcURL, keyHex, common.HexToAddress(contract), chainID)
	if err != nil {
		log.Fatalf("ledger client: %v", err)
	}

	ctx := context.Background()

	var st *store.Store
	var recorder mint.TransitionRecorder
	var idem idempotency.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pool, err := db.Connect(ctx, dsn)
		if err != nil {
			log.Fatalf("attempt store: %v", err)
		}
		st = store.New(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			log.Fatalf("attempt store schema: %v", err)
		}
		recorder = st
		idem = st
	}

	adm := mint.NewAdmission(client)
	fees := mint.NewFeeEstimator(client)
	sub := mint.NewSubmitter(client, adm, fees, recorder, confirmTimeout)

	if st != nil {
		go reconcile.NewSweeper(st, client, reconcileEvery).Run(ctx)
	}

	h := &handlers{submitter: sub, admission: adm, supply: client, store: st, idem: idem}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Post("/mint", h.handleMint)
	r.Get("/supply", h.handleSupply)
	r.Get("/mint/attempts/{request_id}", h.handleGetAttempt)

	log.Printf("mindmint gateway listening on :%s (signer %s, contract %s)", port, client.Signer().Hex(), contract)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return n
}
