package main

import (
	"github.com/sam-keen/bitcoin-price-guesser/internal/cli"
)

func main() {
	cli.Execute()
}
