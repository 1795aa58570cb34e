package main

import (
	"os"

	"github.com/animeshkarmakar7/CommuNet/internal/app"
)

func main() {
	os.Exit(app.Main())
}
