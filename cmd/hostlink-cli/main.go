package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/simonvetter/hostlink"
)

const channelId = "cli"

// units 1 to 31 get the response timeout, unit 0 only the turn-around delay
const defaultUnitNo uint = 1

type cliFlags struct {
	target     string
	speed      uint
	dataBits   uint
	parity     string
	stopBits   uint
	timeout    string
	turnAround string
	unitNo     uint
	trace      bool
	configFile string
	help       bool
}

// Registers the command line options on fs.
func defineFlags(fs *flag.FlagSet) (cf *cliFlags) {
	cf = &cliFlags{}

	fs.StringVar(&cf.target, "target", "serial:///dev/ttyUSB0", "channel to open (e.g. tcp://somehost:9000 for a serial device server)")
	fs.UintVar(&cf.speed, "speed", 9600, "serial bus speed in bps (serial)")
	fs.UintVar(&cf.dataBits, "data-bits", 7, "number of bits per character on the serial bus (serial)")
	fs.StringVar(&cf.parity, "parity", "even", "parity bit <none|even|odd> on the serial bus (serial)")
	fs.UintVar(&cf.stopBits, "stop-bits", 2, "number of stop bits <1|2> on the serial bus (serial)")
	fs.StringVar(&cf.timeout, "timeout", "1s", "response timeout for units 1 to 31")
	fs.StringVar(&cf.turnAround, "turnaround-delay", "250ms", "turn-around delay for unit 0 (responses to unit 0 must arrive within it)")
	fs.UintVar(&cf.unitNo, "unit", defaultUnitNo, "unit number to address <0-31>")
	fs.BoolVar(&cf.trace, "trace", false, "log every frame sent and received")
	fs.StringVar(&cf.configFile, "config", "", "run the poller described by this yaml file instead of commands")
	fs.BoolVar(&cf.help, "help", false, "show a wall-of-text help message")

	return
}

func main() {
	var err error
	var master *hostlink.Master
	var config *hostlink.ChannelConfiguration
	var runList []operation
	var cf *cliFlags

	cf = defineFlags(flag.CommandLine)
	flag.Parse()

	if cf.help {
		displayHelp()
		os.Exit(0)
	}

	if cf.configFile != "" {
		var pc *pollConfig

		pc, err = loadConfig(cf.configFile)
		if err != nil {
			fmt.Printf("failed to load configuration: %v\n", err)
			os.Exit(1)
		}

		err = runPoll(pc)
		if err != nil {
			fmt.Printf("poller failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// create and populate the channel configuration object
	config = &hostlink.ChannelConfiguration{
		URL:         cf.target,
		Speed:       cf.speed,
		DataBits:    cf.dataBits,
		StopBits:    cf.stopBits,
		TraceFrames: cf.trace,
	}

	config.Parity, err = parseParity(cf.parity)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	config.Timeout, err = time.ParseDuration(cf.timeout)
	if err != nil {
		fmt.Printf("failed to parse timeout setting '%s': %v\n", cf.timeout, err)
		os.Exit(1)
	}

	config.TurnAroundDelay, err = time.ParseDuration(cf.turnAround)
	if err != nil {
		fmt.Printf("failed to parse turn-around delay setting '%s': %v\n", cf.turnAround, err)
		os.Exit(1)
	}

	if cf.unitNo > 31 {
		fmt.Printf("unit number %v out of range (should be 0 to 31)\n", cf.unitNo)
		os.Exit(1)
	}

	if len(flag.Args()) == 0 {
		fmt.Printf("nothing to do.\n")
		os.Exit(0)
	}

	// parse arguments and build a list of objects
	for _, arg := range flag.Args() {
		var o operation

		o, err = parseOperation(arg)
		if err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(2)
		}

		runList = append(runList, o)
	}

	master = hostlink.NewMaster(nil)

	err = master.AddChannel(channelId, config)
	if err != nil {
		fmt.Printf("failed to create channel: %v\n", err)
		os.Exit(1)
	}

	// open the serial port/connect to the device server
	err = master.Connect(channelId)
	if err != nil {
		fmt.Printf("failed to open channel: %v\n", err)
		os.Exit(2)
	}
	defer master.Disconnect(channelId)

	runOperations(master, uint8(cf.unitNo), runList)

	return
}

const (
	readArea uint = iota + 1
	writeArea
	setUnitNo
	sleep
	repeat
	date
	scanUnits
)

type operation struct {
	op       uint
	area     hostlink.Area
	bank     uint8
	addr     uint16
	quantity uint16
	values   []uint16
	duration time.Duration
	unitNo   uint8
}

// Parses one command string, e.g. rd:dm:100+9 or wr:em:2:0:0x1234.
func parseOperation(arg string) (o operation, err error) {
	var splitArgs []string
	var rest []string

	splitArgs = strings.Split(arg, ":")
	if len(splitArgs) < 2 && splitArgs[0] != "repeat" && splitArgs[0] != "date" && splitArgs[0] != "scan" {
		err = fmt.Errorf("illegal command format (should be command:arg1:arg2..., e.g. rd:dm:100+9)")
		return
	}

	switch splitArgs[0] {
	case "rd", "read":
		o.op = readArea

		o.area, o.bank, rest, err = parseAreaAndBank(splitArgs[1:])
		if err != nil {
			return
		}
		if len(rest) != 1 {
			err = fmt.Errorf("need exactly an address after the area in '%s'", arg)
			return
		}

		o.addr, o.quantity, err = parseAddressAndQuantity(rest[0])
		if err != nil {
			err = fmt.Errorf("failed to parse address ('%v'): %w", rest[0], err)
			return
		}

	case "wr", "write":
		o.op = writeArea

		o.area, o.bank, rest, err = parseAreaAndBank(splitArgs[1:])
		if err != nil {
			return
		}
		if len(rest) != 2 {
			err = fmt.Errorf("need exactly an address and a value list after the area in '%s'", arg)
			return
		}

		o.addr, err = parseUint16(rest[0])
		if err != nil {
			err = fmt.Errorf("failed to parse address ('%v'): %w", rest[0], err)
			return
		}

		for _, v := range strings.Split(rest[1], ",") {
			var u16 uint16

			u16, err = parseUint16(v)
			if err != nil {
				err = fmt.Errorf("failed to parse value '%s': %w", v, err)
				return
			}
			o.values = append(o.values, u16)
		}

	case "sleep":
		if len(splitArgs) != 2 {
			err = fmt.Errorf("need exactly 1 argument after sleep, got %v", len(splitArgs)-1)
			return
		}

		o.op = sleep
		o.duration, err = time.ParseDuration(splitArgs[1])
		if err != nil {
			err = fmt.Errorf("failed to parse '%s' as duration: %w", splitArgs[1], err)
		}

	case "sunit", "setUnitNo", "unit":
		if len(splitArgs) != 2 {
			err = fmt.Errorf("need exactly 1 argument after setUnitNo, got %v", len(splitArgs)-1)
			return
		}

		o.op = setUnitNo
		o.unitNo, err = parseUnitNo(splitArgs[1])
		if err != nil {
			err = fmt.Errorf("failed to parse '%s' as unit number: %w", splitArgs[1], err)
		}

	case "repeat":
		if len(splitArgs) != 1 {
			err = fmt.Errorf("repeat takes no argument, got %v", len(splitArgs)-1)
			return
		}

		o.op = repeat

	case "date":
		if len(splitArgs) != 1 {
			err = fmt.Errorf("date takes no argument, got %v", len(splitArgs)-1)
			return
		}

		o.op = date

	case "scan":
		if len(splitArgs) != 1 {
			err = fmt.Errorf("scan takes no argument, got %v", len(splitArgs)-1)
			return
		}

		o.op = scanUnits

	default:
		err = fmt.Errorf("unsupported command '%v'", splitArgs[0])
	}

	return
}

func runOperations(master *hostlink.Master, unitNo uint8, runList []operation) {
	var err error
	var ctx = context.Background()

	for opIdx := 0; opIdx < len(runList); opIdx++ {
		var o *operation = &runList[opIdx]

		switch o.op {
		case readArea:
			var res []uint16

			res, err = master.ReadArea(ctx, channelId, unitNo, o.area, o.bank, o.addr, o.quantity+1)
			if err != nil {
				fmt.Printf("failed to read %s: %v\n", o.area, err)
			} else {
				for idx := range res {
					fmt.Printf("%s %04d : 0x%04x\t%v\n",
						o.area, int(o.addr)+idx, res[idx], res[idx])
				}
			}

		case writeArea:
			err = master.WriteArea(ctx, channelId, unitNo, o.area, o.bank, o.addr, o.values)
			if err != nil {
				fmt.Printf("failed to write %v at %s %04d: %v\n", o.values, o.area, o.addr, err)
			} else {
				fmt.Printf("wrote %v at %s %04d\n", o.values, o.area, o.addr)
			}

		case sleep:
			time.Sleep(o.duration)

		case setUnitNo:
			unitNo = o.unitNo

		case repeat:
			// start over
			opIdx = -1

		case date:
			fmt.Printf("%s\n", time.Now().Format(time.RFC3339))

		case scanUnits:
			performUnitScan(master)

		default:
			fmt.Printf("unknown operation %v\n", o)
			os.Exit(100)
		}
	}

	return
}

// Lists the units answering on the channel, by reading DM 0000 on every
// unit number.
func performUnitScan(master *hostlink.Master) {
	var err error
	var count uint
	var ctx = context.Background()
	var endCode *hostlink.EndCodeError

	fmt.Printf("starting unit scan\n")

	for unitNo := uint8(0); unitNo <= 31; unitNo++ {
		_, err = master.ReadArea(ctx, channelId, unitNo, hostlink.DM, 0, 0, 1)
		switch {
		case errors.Is(err, hostlink.ErrRequestTimedOut):
			// nobody home
			continue
		case errors.As(err, &endCode):
			// the unit answered with an error: it exists
			fmt.Printf("unit %02d : present (end code %s)\n", unitNo, endCode.EndCode)
			count++
		case err != nil:
			fmt.Printf("unit %02d : %v\n", unitNo, err)
		default:
			fmt.Printf("unit %02d : present\n", unitNo)
			count++
		}
	}

	fmt.Printf("found %v unit(s)\n", count)

	return
}

// Parses <area>[:<bank>] off the front of args. Only extended memory
// takes a bank.
func parseAreaAndBank(args []string) (area hostlink.Area, bank uint8, rest []string, err error) {
	var val uint64

	area, err = hostlink.ParseArea(args[0])
	if err != nil {
		return
	}
	rest = args[1:]

	if area == hostlink.ExtendedMemory {
		if len(rest) == 0 {
			err = fmt.Errorf("extended memory needs a bank number")
			return
		}

		val, err = strconv.ParseUint(rest[0], 0, 8)
		if err != nil {
			err = fmt.Errorf("failed to parse bank ('%v'): %w", rest[0], err)
			return
		}
		bank = uint8(val)
		rest = rest[1:]
	}

	return
}

func parseUint16(in string) (u16 uint16, err error) {
	var val uint64

	val, err = strconv.ParseUint(in, 0, 16)
	if err == nil {
		u16 = uint16(val)
	}

	return
}

func parseAddressAndQuantity(in string) (addr uint16, quantity uint16, err error) {
	var split = strings.Split(in, "+")

	switch {
	case len(split) == 1:
		addr, err = parseUint16(in)

	case len(split) == 2:
		addr, err = parseUint16(split[0])
		if err != nil {
			return
		}
		quantity, err = parseUint16(split[1])

	default:
		err = errors.New("illegal format")
	}

	return
}

func parseUnitNo(in string) (unitNo uint8, err error) {
	var val uint64

	val, err = strconv.ParseUint(in, 10, 8)
	if err == nil && val > 31 {
		err = fmt.Errorf("%v out of range (should be 0 to 31)", val)
	}
	if err == nil {
		unitNo = uint8(val)
	}

	return
}

func displayHelp() {
	fmt.Println(
		`
This tool is a Host Link command line interface meant to allow quick and easy
interaction with Omron controllers (e.g. probing or troubleshooting).

Available options:`)
	flag.PrintDefaults()
	fmt.Printf(
		`

Command strings must be given as trailing arguments after any options.

Example: hostlink-cli --target=serial:///dev/ttyUSB0 --unit 1 rd:dm:100+4 wr:hr:10:0x1234
	 Read DM 0100 to 0104 then write 0x1234 to HR 0010 on unit 1.

Available commands:
* <rd|read>:<area>[:<bank>]:<addr>[+additional quantity]
  Read the item at address <addr> of <area>, plus any additional items if specified.
  <area> is one of cio, lr, hr, tcpv, tcstatus, dm, ar or em (extended memory, which
  takes a bank number).

  rd:dm:100+9		reads DM 0100 to 0109
  rd:em:3:0+1		reads EM bank 3, words 0000 and 0001
  rd:tcstatus:20+7	reads 8 timer/counter completion flags starting at 0020

* <wr|write>:<area>[:<bank>]:<addr>:<value>[,<value>...]
  Write values to consecutive items of <area> starting at <addr>.
  Timer/counter completion flags take 0 or 1.

  wr:dm:100:0x1234,42	writes 0x1234 to DM 0100 and 42 to DM 0101

* sleep:<duration>
  Pause for <duration>, specified as a golang duration string.

* <setUnitNo|sunit|unit>:<unit number>
  Switch to unit number <unit number> (0 to 31) for subsequent requests.
  Requests to unit 0 only wait for the turn-around delay (--turnaround-delay):
  at 9600 bps a full 30-word response frame takes about 150ms, so reads of more
  than one frame from unit 0 need a longer delay.

* repeat
  Restart execution of the given commands.

* date
  Print the current date and time (can be useful for long-running scripts).

* scan
  Try unit numbers 0 to 31 by reading DM 0000 and list the units answering.

Poller mode:
  With --config <file>, the tool ignores commands and instead polls the blocks listed
  in the yaml file, printing every cycle and publishing it to an mqtt broker if an
  mqtt section is present.

Examples:
  $ hostlink-cli --target tcp://10.100.0.10:9000 --unit 2 rd:cio:0+3 sleep:1s repeat
  Connect to the serial device server at 10.100.0.10 port 9000 and read CIO 0000 to
  0003 of unit 2 every second, forever.

  $ hostlink-cli --target serial:///dev/ttyUSB0 --speed 19200 scan
  Open /dev/ttyUSB0 at 19200 bps and list all units answering on the bus.
`)

	return
}
