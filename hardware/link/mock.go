package link

import (
	"net"
	"sync"
)

// Mock becomes associated after AssociateAfter successful polls.
type Mock struct {
	mu             sync.Mutex
	MAC            net.HardwareAddr
	AssociateAfter int
	AssociateErr   error
	PollErr        error
	Associations   int
	Polls          int
	SSID           string
	Password       string
}

func NewMock(mac string, after int) *Mock {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	return &Mock{MAC: hw, AssociateAfter: after}
}

func (self *Mock) Associate(ssid, password string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Associations++
	self.SSID, self.Password = ssid, password
	return self.AssociateErr
}

func (self *Mock) IsAssociated() (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.PollErr != nil {
		return false, self.PollErr
	}
	self.Polls++
	return self.Associations > 0 && self.Polls > self.AssociateAfter, nil
}

func (self *Mock) HardwareAddr() (net.HardwareAddr, error) {
	return self.MAC, nil
}
