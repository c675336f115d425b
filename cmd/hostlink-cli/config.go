package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simonvetter/hostlink"
	"github.com/simonvetter/hostlink/mqtt"
)

// pollConfig is the layout of the file given with --config.
type pollConfig struct {
	Channels []channelConfig `yaml:"channels"`
	Poll     pollSection     `yaml:"poll"`
	MQTT     *mqttConfig     `yaml:"mqtt"`
}

type channelConfig struct {
	ID              string        `yaml:"id"`
	URL             string        `yaml:"url"`
	Speed           uint          `yaml:"speed"`
	DataBits        uint          `yaml:"data_bits"`
	Parity          string        `yaml:"parity"`
	StopBits        uint          `yaml:"stop_bits"`
	Timeout         time.Duration `yaml:"timeout"`
	TurnAroundDelay time.Duration `yaml:"turnaround_delay"`
	Trace           bool          `yaml:"trace"`
}

type pollSection struct {
	Interval time.Duration `yaml:"interval"`
	Blocks   []blockConfig `yaml:"blocks"`
}

type blockConfig struct {
	Name     string `yaml:"name"`
	Channel  string `yaml:"channel"`
	Unit     uint8  `yaml:"unit"`
	Area     string `yaml:"area"`
	Bank     uint8  `yaml:"bank"`
	Begin    uint16 `yaml:"begin"`
	Count    uint16 `yaml:"count"`
	Writable bool   `yaml:"writable"`
}

type mqttConfig struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	RootTopic string `yaml:"root_topic"`
	QoS       byte   `yaml:"qos"`
	Retain    bool   `yaml:"retain"`
}

// Reads and validates a poll configuration file.
func loadConfig(path string) (conf *pollConfig, err error) {
	var buf []byte

	buf, err = os.ReadFile(path)
	if err != nil {
		return
	}

	conf, err = parseConfig(buf)
	if err != nil {
		err = fmt.Errorf("%s: %w", path, err)
	}

	return
}

func parseConfig(buf []byte) (conf *pollConfig, err error) {
	conf = &pollConfig{}

	err = yaml.Unmarshal(buf, conf)
	if err != nil {
		conf = nil
		return
	}

	err = conf.validate()
	if err != nil {
		conf = nil
	}

	return
}

// Checks cross references between sections. Block geometry is checked
// when the poller is built.
func (pc *pollConfig) validate() (err error) {
	var ids = make(map[string]bool)
	var names = make(map[string]bool)

	if len(pc.Channels) == 0 {
		err = fmt.Errorf("no channel defined")
		return
	}

	for _, cc := range pc.Channels {
		if cc.ID == "" {
			err = fmt.Errorf("channel with url '%s' has no id", cc.URL)
			return
		}
		if ids[cc.ID] {
			err = fmt.Errorf("duplicate channel id '%s'", cc.ID)
			return
		}
		ids[cc.ID] = true

		_, err = parseParity(cc.Parity)
		if err != nil {
			err = fmt.Errorf("channel '%s': %w", cc.ID, err)
			return
		}
	}

	for _, bc := range pc.Poll.Blocks {
		if bc.Name == "" {
			err = fmt.Errorf("poll block without a name")
			return
		}
		if names[bc.Name] {
			err = fmt.Errorf("duplicate poll block name '%s'", bc.Name)
			return
		}
		names[bc.Name] = true

		if !ids[bc.Channel] {
			err = fmt.Errorf("poll block '%s' refers to unknown channel '%s'", bc.Name, bc.Channel)
			return
		}

		_, err = hostlink.ParseArea(bc.Area)
		if err != nil {
			err = fmt.Errorf("poll block '%s': %w", bc.Name, err)
			return
		}
	}

	if pc.MQTT != nil && pc.MQTT.Broker == "" {
		err = fmt.Errorf("mqtt section without a broker")
		return
	}

	return
}

// Returns the channel configuration of cc.
func (cc channelConfig) channelConfiguration() (conf *hostlink.ChannelConfiguration) {
	conf = &hostlink.ChannelConfiguration{
		URL:             cc.URL,
		Speed:           cc.Speed,
		DataBits:        cc.DataBits,
		StopBits:        cc.StopBits,
		Timeout:         cc.Timeout,
		TurnAroundDelay: cc.TurnAroundDelay,
		TraceFrames:     cc.Trace,
	}
	// validated at load time
	conf.Parity, _ = parseParity(cc.Parity)

	return
}

// Returns the poller configuration of the poll section.
func (ps pollSection) pollerConfiguration() (conf *hostlink.PollerConfiguration) {
	conf = &hostlink.PollerConfiguration{
		Interval: ps.Interval,
	}

	for _, bc := range ps.Blocks {
		area, _ := hostlink.ParseArea(bc.Area)

		conf.Blocks = append(conf.Blocks, hostlink.PollBlock{
			Name:          bc.Name,
			Channel:       bc.Channel,
			UnitNo:        bc.Unit,
			Area:          area,
			Bank:          bc.Bank,
			BeginningWord: bc.Begin,
			Count:         bc.Count,
		})
	}

	return
}

// Returns the publisher configuration of the mqtt section.
func (mc *mqttConfig) publisherConfiguration() (conf *mqtt.Configuration) {
	conf = &mqtt.Configuration{
		Broker:    mc.Broker,
		ClientID:  mc.ClientID,
		Username:  mc.Username,
		Password:  mc.Password,
		RootTopic: mc.RootTopic,
		QoS:       mc.QoS,
		Retain:    mc.Retain,
	}

	if conf.ClientID == "" {
		conf.ClientID = "hostlink-cli"
	}

	return
}

func parseParity(in string) (parity uint, err error) {
	switch in {
	case "", "even":
		parity = hostlink.PARITY_EVEN
	case "odd":
		parity = hostlink.PARITY_ODD
	case "none":
		parity = hostlink.PARITY_NONE
	default:
		err = fmt.Errorf("unknown parity setting '%s' (should be one of none, odd or even)", in)
	}

	return
}
