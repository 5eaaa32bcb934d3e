package main

import "soul-card-backend/cmd"

func main() {
	cmd.Execute()
}
