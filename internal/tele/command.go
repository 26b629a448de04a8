package tele

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/temoto/drybox/internal/metrics"
	"github.com/temoto/drybox/internal/settings"
)

// Handle applies configuration message addressed to this device.
// Messages on other topics, malformed or for other devices are dropped
// with ActionNone and nil error. Accepted update returns ActionRestart,
// rejected one returns error and no restart.
func (self *Manager) Handle(msg Inbound) (Action, error) {
	config := self.settings.Config()
	if msg.Topic != config.MqttConfigTopic {
		self.log.Debugf("tele drop topic=%s", msg.Topic)
		self.metrics.Inbound(metrics.InboundDropped)
		return ActionNone, nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload == nil {
		self.log.Errorf("tele drop malformed config payload=%q err=%v", msg.Payload, err)
		self.metrics.Inbound(metrics.InboundDropped)
		return ActionNone, nil
	}

	rawID, ok := payload[settings.KeyMqttClient]
	if !ok {
		self.log.Infof("tele drop config without %s", settings.KeyMqttClient)
		self.metrics.Inbound(metrics.InboundDropped)
		return ActionNone, nil
	}
	id, _ := rawID.(string)
	if id != config.MqttClient {
		self.log.Infof("tele drop config for %s=%v, this device=%s", settings.KeyMqttClient, rawID, config.MqttClient)
		self.metrics.Inbound(metrics.InboundDropped)
		return ActionNone, nil
	}

	delete(payload, settings.KeyMqttClient)
	if _, err := self.settings.Update(payload); err != nil {
		self.metrics.Inbound(metrics.InboundRejected)
		return ActionNone, errors.Annotate(err, "tele config update")
	}
	self.log.Infof("tele config applied keys=%d, restart required", len(payload))
	self.metrics.Inbound(metrics.InboundApplied)
	return ActionRestart, nil
}
