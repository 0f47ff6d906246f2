package main

import (
	"os"

	"chat-gateway/internal/app"
)

func main() {
	os.Exit(app.Run())
}
