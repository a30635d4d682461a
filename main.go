// Command coinwatch browses cryptocurrency market data from CoinGecko.
package main

import "github.com/derickschaefer/coinwatch/cmd"

func main() {
	cmd.Execute()
}
