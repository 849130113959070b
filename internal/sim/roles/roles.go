// Package roles wires every role implementation into the session
// registry. Binaries call RegisterAll once at startup.
package roles

import (
	"sync"

	"towntrade.dev/internal/sim/roles/blacksmith"
	"towntrade.dev/internal/sim/roles/generalstore"
	"towntrade.dev/internal/sim/session"
)

var once sync.Once

func RegisterAll() {
	once.Do(func() {
		session.RegisterRole(generalstore.New())
		session.RegisterRole(blacksmith.New())
	})
}
