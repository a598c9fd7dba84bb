package main

import "computeruse-backend/internal/cmd"

func main() {
	cmd.Execute()
}
