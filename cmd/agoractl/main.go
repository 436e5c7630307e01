// Command agoractl runs maintenance tasks against the Agora database.
package main

import "agora/cmd/agoractl/commands"

func main() {
	commands.Execute()
}
