package cluster

import (
	"log"
	"time"

	"github.com/sjeohp/parity/wire"
)

const writeTimeout = 10 * time.Second

// startSendWorker runs c's outbound flush loop: whenever Enqueue wakes
// it, it drains the bounded outbox and writes each frame in order.
// Reads are handled by the single shared gaio reactor; writes stay on
// a dedicated blocking goroutine per connection.
func startSendWorker(c *Connection) {
	for {
		select {
		case <-c.closed:
			return
		case <-c.notify:
			for _, msg := range c.drain() {
				c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := wire.WriteMessage(c.Conn, msg); err != nil {
					log.Printf("cluster: write to %s failed: %v", c.PeerId, err)
					c.Close()
					return
				}
			}
		}
	}
}
