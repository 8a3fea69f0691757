package main

import (
	"fmt"

	"sample-project/greet"
)

func main() {
	g := greet.New("world")
	fmt.Println(g.Hello())
}
