package serialchat_test

import (
	"fmt"

	"github.com/rs/zerolog"

	"serialchat"
)

// Example wires the core pieces together the way an application would:
// a registry for live ports, a store for history and a router for group
// forwarding.
func Example() {
	log := zerolog.Nop()

	registry := serialchat.NewRegistry(log)
	defer registry.Close()

	store := serialchat.NewMessageStore()
	router := serialchat.NewGroupRouter(registry, store, log)

	registry.OnMessageReceived(func(port string, msg serialchat.Message) {
		fmt.Printf("[%s] %s\n", port, msg.Text())
	})

	if err := registry.Connect("/dev/ttyUSB0"); err != nil {
		fmt.Println("connect:", err)
	}

	g := router.CreateGroup("bench", "lab equipment")
	router.AddMember(g.ID, "/dev/ttyUSB0")

	if _, err := registry.SendText("/dev/ttyUSB0", "*IDN?"); err != nil {
		fmt.Println("send:", err)
	}
}
