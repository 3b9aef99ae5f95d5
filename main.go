package main

import "github.com/frahmantamala/crm-backend/cmd"

func main() {
	cmd.Execute()
}
