// Package protocol implements bloomd's line-oriented wire protocol: parsing
// a request line into a command, dispatching it against an Executor, and
// framing the reply for TCP or silently dropping it for UDP.
package protocol

import (
	"github.com/dd0wney/bloomd/pkg/filterentry"
	"github.com/dd0wney/bloomd/pkg/manager"
)

// Executor is the subset of Manager operations the protocol layer needs.
// Defining it as an interface keeps command handling decoupled from
// Manager's concrete locking/scheduling machinery and easy to fake in
// tests.
type Executor interface {
	Create(name string, overrides manager.Overrides) error
	Drop(name string) error
	CloseFilter(name string) error
	CheckKeys(name string, keys [][]byte) ([]bool, error)
	SetKeys(name string, keys [][]byte) ([]bool, error)
	FlushFilter(name string) error
	FlushAll()
	Info(name string) (manager.Info, error)
	List() []manager.Info
	Conf(name string) (map[string]filterentry.Config, error)
}
