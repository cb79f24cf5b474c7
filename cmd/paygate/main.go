package main

import (
	"github.com/suscribo/paygate/internal/server"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		server.Module,
	).Run()
}
