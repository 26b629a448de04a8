package tele

import (
	"context"

	"github.com/juju/errors"
	"github.com/temoto/drybox/hardware/link"
	"github.com/temoto/drybox/internal/settings"
)

// LinkUp associates with wireless network from settings and waits forever
// until link is up. Returns device identity derived from link-layer address,
// persisting it into settings when it differs.
func (self *Manager) LinkUp(ctx context.Context) (string, error) {
	if self.opt.Link == nil {
		return "", errors.New("code error tele.Options.Link=nil")
	}
	config := self.settings.Config()

	mac, err := self.opt.Link.HardwareAddr()
	if err != nil {
		return "", errors.Annotate(err, "tele link address")
	}
	id := link.DeviceID(mac)
	self.log.Infof("tele device mac=%s", id)
	self.show("MAC:", id)
	if err := self.opt.Sleep(ctx, self.opt.ScreenDelay); err != nil {
		return "", err
	}

	self.associate(config)
	self.show("Conectando . . .", "")
	for polls := 1; ; polls++ {
		ok, err := self.opt.Link.IsAssociated()
		if err != nil {
			self.log.Errorf("tele link poll err=%v", err)
		}
		if ok {
			break
		}
		if polls%self.opt.ReassociateEvery == 0 {
			self.associate(config)
		}
		if err := self.opt.Sleep(ctx, self.opt.PollInterval); err != nil {
			return "", err
		}
	}

	self.mu.Lock()
	self.session.Associated = true
	self.deviceID = id
	self.mu.Unlock()
	self.log.Infof("tele link up ssid=%s", config.WifiSSID)
	self.show("WiFi Conectado!", "")
	if err := self.opt.Sleep(ctx, self.opt.ScreenDelay); err != nil {
		return id, err
	}

	if config.MacAddress != id {
		if _, err := self.settings.Update(map[string]interface{}{settings.KeyMacAddress: id}); err != nil {
			self.log.Error(errors.Annotate(err, "tele store mac"))
		}
	}
	return id, nil
}

func (self *Manager) associate(config settings.Config) {
	if err := self.opt.Link.Associate(config.WifiSSID, config.WifiPassword); err != nil {
		self.log.Errorf("tele link associate ssid=%s err=%v", config.WifiSSID, err)
	}
}
