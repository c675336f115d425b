package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/simonvetter/hostlink"
	"github.com/simonvetter/hostlink/mqtt"
)

// Runs the poller described by conf until interrupted, printing results
// and forwarding them to the mqtt broker if one is configured.
func runPoll(conf *pollConfig) (err error) {
	var master *hostlink.Master
	var poller *hostlink.Poller
	var publisher *mqtt.Publisher
	var results = make(chan hostlink.PollResult)
	var ctx context.Context
	var cancel context.CancelFunc

	master = hostlink.NewMaster(nil)

	for _, cc := range conf.Channels {
		err = master.AddChannel(cc.ID, cc.channelConfiguration())
		if err != nil {
			return
		}

		err = master.Connect(cc.ID)
		if err != nil {
			err = fmt.Errorf("failed to connect channel '%s': %w", cc.ID, err)
			return
		}
		defer master.Disconnect(cc.ID)
	}

	poller, err = hostlink.NewPoller(master, conf.Poll.pollerConfiguration())
	if err != nil {
		return
	}

	if conf.MQTT != nil {
		publisher = mqtt.NewPublisher(conf.MQTT.publisherConfiguration())
		publisher.SetWriteHandler(blockWriter(master, conf.Poll.Blocks))

		err = publisher.Start()
		if err != nil {
			return
		}
		defer publisher.Stop()
	}

	ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go poller.Run(ctx, results)

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-results:
			printPollResult(res)

			if publisher != nil {
				if perr := publisher.Publish(res); perr != nil {
					fmt.Printf("failed to publish poll result: %v\n", perr)
				}
			}
		}
	}
}

// Returns a write handler writing to the writable blocks of blocks.
func blockWriter(master *hostlink.Master, blocks []blockConfig) mqtt.WriteHandler {
	var writable = make(map[string]blockConfig)

	for _, bc := range blocks {
		if bc.Writable {
			writable[bc.Name] = bc
		}
	}

	return func(block string, values []uint16) (err error) {
		var bc blockConfig
		var area hostlink.Area
		var ok bool
		var ctx context.Context
		var cancel context.CancelFunc

		bc, ok = writable[block]
		if !ok {
			err = fmt.Errorf("block '%s' is not writable", block)
			return
		}

		if len(values) > int(bc.Count) {
			err = fmt.Errorf("block '%s' holds %d items, got %d values", block, bc.Count, len(values))
			return
		}

		area, err = hostlink.ParseArea(bc.Area)
		if err != nil {
			return
		}

		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// the poller may be holding the channel: retry until it is free
		for {
			err = master.WriteArea(ctx, bc.Channel, bc.Unit, area, bc.Bank, bc.Begin, values)
			if !errors.Is(err, hostlink.ErrChannelBusy) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}

func printPollResult(res hostlink.PollResult) {
	if res.Err != nil {
		fmt.Printf("%s poll failed: %v\n", res.At.Format(time.RFC3339), res.Err)
		return
	}

	for _, br := range res.Blocks {
		fmt.Printf("%s %s (%s %04d+%d on unit %02d):",
			res.At.Format(time.RFC3339), br.Block.Name, br.Block.Area,
			br.Block.BeginningWord, len(br.Values), br.Block.UnitNo)
		for _, v := range br.Values {
			fmt.Printf(" 0x%04x", v)
		}
		fmt.Printf("\n")
	}

	return
}
