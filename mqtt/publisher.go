// Package mqtt publishes poll results to an MQTT broker and turns write
// requests received from the broker into area writes.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/simonvetter/hostlink"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

type Configuration struct {
	// broker URL, e.g. tcp://localhost:1883
	Broker    string
	ClientID  string
	Username  string
	Password  string
	RootTopic string
	QoS       byte
	Retain    bool
	Logger    *log.Logger
}

// BlockMessage is the JSON document published for each poll block.
type BlockMessage struct {
	Block         string   `json:"block"`
	Channel       string   `json:"channel"`
	UnitNo        uint8    `json:"unit"`
	Area          string   `json:"area"`
	Bank          uint8    `json:"bank,omitempty"`
	BeginningWord uint16   `json:"beginning_word"`
	Values        []uint16 `json:"values"`
	Timestamp     string   `json:"timestamp"`
}

// StatusMessage is published on <root>/status after every poll cycle.
type StatusMessage struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// WriteRequest is the JSON document expected on <root>/<block>/write.
type WriteRequest struct {
	Values []uint16 `json:"values"`
}

// WriteHandler writes values to the block named block.
type WriteHandler func(block string, values []uint16) error

// Publisher pushes poll results to a single broker.
type Publisher struct {
	conf    Configuration
	logger  *log.Logger
	client  pahomqtt.Client
	running bool
	mu      sync.RWMutex

	// last published values per block, to only publish changes
	lastValues map[string]string
	lastMu     sync.Mutex

	writeHandler WriteHandler
}

func NewPublisher(conf *Configuration) (p *Publisher) {
	p = &Publisher{
		conf:       *conf,
		lastValues: make(map[string]string),
	}

	if p.conf.RootTopic == "" {
		p.conf.RootTopic = "hostlink"
	}
	p.conf.RootTopic = strings.TrimSuffix(p.conf.RootTopic, "/")

	p.logger = p.conf.Logger
	if p.logger == nil {
		p.logger = log.New(os.Stdout, "", log.LstdFlags)
	}

	return
}

// SetWriteHandler registers the handler invoked for write requests.
// Must be called before Start().
func (p *Publisher) SetWriteHandler(h WriteHandler) {
	p.writeHandler = h
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.running
}

// Start connects to the broker and subscribes to write requests if a write
// handler is set.
func (p *Publisher) Start() (err error) {
	var opts *pahomqtt.ClientOptions
	var client pahomqtt.Client
	var token pahomqtt.Token

	if p.IsRunning() {
		return
	}

	opts = pahomqtt.NewClientOptions()
	opts.AddBroker(p.conf.Broker)
	opts.SetClientID(p.conf.ClientID)
	if p.conf.Username != "" {
		opts.SetUsername(p.conf.Username)
		opts.SetPassword(p.conf.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	client = pahomqtt.NewClient(opts)
	p.logf("connecting to broker %s", p.conf.Broker)

	token = client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		err = fmt.Errorf("mqtt: timeout connecting to %s", p.conf.Broker)
		return
	}
	if token.Error() != nil {
		err = fmt.Errorf("mqtt: %w", token.Error())
		return
	}

	err = p.attach(client)

	return
}

// Installs a connected client and subscribes to write topics.
func (p *Publisher) attach(client pahomqtt.Client) (err error) {
	var token pahomqtt.Token

	p.mu.Lock()
	p.client = client
	p.running = true
	p.mu.Unlock()

	p.lastMu.Lock()
	p.lastValues = make(map[string]string)
	p.lastMu.Unlock()

	if p.writeHandler == nil {
		return
	}

	token = client.Subscribe(p.conf.RootTopic+"/+/write", p.conf.QoS, p.handleWrite)
	if !token.WaitTimeout(publishTimeout) {
		err = fmt.Errorf("mqtt: timeout subscribing to write requests")
		return
	}
	err = token.Error()

	return
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	var client pahomqtt.Client

	p.mu.Lock()
	client = p.client
	p.client = nil
	p.running = false
	p.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}

	return
}

// Publish sends the blocks of res whose values changed since the last
// cycle, followed by a status message. Failed cycles only publish the
// status message.
func (p *Publisher) Publish(res hostlink.PollResult) (err error) {
	var client pahomqtt.Client
	var status StatusMessage

	p.mu.RLock()
	client = p.client
	p.mu.RUnlock()

	if client == nil {
		err = fmt.Errorf("mqtt: publisher not started")
		return
	}

	status.Timestamp = res.At.UTC().Format(time.RFC3339)
	status.OK = res.Err == nil
	if res.Err != nil {
		status.Error = res.Err.Error()
	}

	for _, br := range res.Blocks {
		if !p.changed(br) {
			continue
		}

		err = p.send(client, p.BlockTopic(br.Block.Name), BlockMessage{
			Block:         br.Block.Name,
			Channel:       br.Block.Channel,
			UnitNo:        br.Block.UnitNo,
			Area:          br.Block.Area.String(),
			Bank:          br.Block.Bank,
			BeginningWord: br.Block.BeginningWord,
			Values:        br.Values,
			Timestamp:     status.Timestamp,
		})
		if err != nil {
			p.forget(br.Block.Name)
			return
		}
	}

	err = p.send(client, p.conf.RootTopic+"/status", status)

	return
}

// BlockTopic returns the topic values of block are published on.
func (p *Publisher) BlockTopic(block string) string {
	return p.conf.RootTopic + "/" + block
}

// Returns true and records the new values if they differ from the last
// published ones.
func (p *Publisher) changed(br hostlink.BlockResult) (changed bool) {
	var key = fmt.Sprint(br.Values)

	p.lastMu.Lock()
	defer p.lastMu.Unlock()

	if last, ok := p.lastValues[br.Block.Name]; ok && last == key {
		return
	}
	p.lastValues[br.Block.Name] = key
	changed = true

	return
}

func (p *Publisher) forget(block string) {
	p.lastMu.Lock()
	delete(p.lastValues, block)
	p.lastMu.Unlock()
}

func (p *Publisher) send(client pahomqtt.Client, topic string, msg interface{}) (err error) {
	var payload []byte
	var token pahomqtt.Token

	payload, err = json.Marshal(msg)
	if err != nil {
		return
	}

	token = client.Publish(topic, p.conf.QoS, p.conf.Retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		err = fmt.Errorf("mqtt: timeout publishing to %s", topic)
		return
	}
	err = token.Error()

	return
}

// Handles one message received on <root>/<block>/write.
func (p *Publisher) handleWrite(client pahomqtt.Client, msg pahomqtt.Message) {
	var req WriteRequest
	var block string
	var err error

	block = strings.TrimPrefix(msg.Topic(), p.conf.RootTopic+"/")
	block = strings.TrimSuffix(block, "/write")

	err = json.Unmarshal(msg.Payload(), &req)
	if err != nil {
		p.logf("ignoring malformed write request for '%s': %v", block, err)
		return
	}

	err = p.writeHandler(block, req.Values)
	if err != nil {
		p.logf("write to '%s' failed: %v", block, err)
	} else {
		p.logf("wrote %d value(s) to '%s'", len(req.Values), block)
		// republish the block on the next cycle
		p.forget(block)
	}

	return
}

func (p *Publisher) logf(format string, args ...interface{}) {
	p.logger.Printf("mqtt-publisher(%s): %s", p.conf.Broker, fmt.Sprintf(format, args...))
}
