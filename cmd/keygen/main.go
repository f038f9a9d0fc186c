// keygen generates a development ECDSA P-256 key pair and writes it as PEM.
// Point JWT_PRIVATE_KEY and JWT_PUBLIC_KEY at the generated files.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func main() {
	dir := flag.String("out", ".", "Directory to write jwt_private.pem and jwt_public.pem into")
	flag.Parse()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("keygen: generate: %v", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		log.Fatalf("keygen: marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		log.Fatalf("keygen: marshal public key: %v", err)
	}

	privPath := filepath.Join(*dir, "jwt_private.pem")
	pubPath := filepath.Join(*dir, "jwt_public.pem")

	if err := writePEM(privPath, "PRIVATE KEY", privDER, 0o600); err != nil {
		log.Fatalf("keygen: %v", err)
	}
	if err := writePEM(pubPath, "PUBLIC KEY", pubDER, 0o644); err != nil {
		log.Fatalf("keygen: %v", err)
	}

	fmt.Printf("wrote %s and %s\n", privPath, pubPath)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
