package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hjin-me/wechatmp/internal/signature"
)

// Computes the query-string signatures for a callback request, for
// exercising an endpoint with curl during development.
func main() {
	token := flag.String("token", "", "Shared echo token")
	nonce := flag.String("nonce", "", "Request nonce")
	ts := flag.Int64("timestamp", 0, "Unix timestamp (defaults to now)")
	encrypted := flag.Bool("encrypted", false, "Also sign an encrypted payload read from stdin")
	flag.Parse()

	if *token == "" || *nonce == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -token <echo-token> -nonce <nonce> [-timestamp <unix>] [-encrypted < payload]")
		os.Exit(1)
	}
	if *ts == 0 {
		*ts = time.Now().Unix()
	}

	fmt.Printf("signature=%s\n", signature.Compute(*token, *ts, *nonce, ""))
	fmt.Printf("timestamp=%d\n", *ts)
	fmt.Printf("nonce=%s\n", *nonce)

	if *encrypted {
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read payload: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("encrypt_type=aes\n")
		fmt.Printf("msg_signature=%s\n", signature.Compute(*token, *ts, *nonce, string(payload)))
	}
}
