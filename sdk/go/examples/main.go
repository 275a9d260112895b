package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"StarkProof/sdk/go/starkproof"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stark-proof/{secret}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("secret") != "demo" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Error generating proof: Proof not found for the given secret"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`"{\"commitment\":\"0x01\",\"fri_layers\":[1,2,3]}"`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := starkproof.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proof, err := client.GetProof(ctx, "demo")
	if err != nil {
		panic(err)
	}
	fmt.Printf("retrieved proof for %s: %s\n", proof.Secret, proof.Document)

	_, err = client.GetProof(ctx, "unknown")
	if apiErr, ok := err.(*starkproof.APIError); ok && apiErr.IsNotFound() {
		fmt.Printf("secret unknown is not stored (status=%d)\n", apiErr.StatusCode)
	}
}
