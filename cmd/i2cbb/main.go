package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"golang.org/x/exp/constraints"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/host/v3"

	"github.com/soypat/i2cbb"
	"github.com/soypat/i2cbb/gpiolines"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "i2cbb - I2C controller bit-banged on two host GPIO pins.\n\tUsage:\n"+
			"\ti2cbb [flags] scan\n"+
			"\ti2cbb [flags] read ADDR N\n"+
			"\ti2cbb [flags] write ADDR BYTE...\n"+
			"\ti2cbb [flags] readreg ADDR REG N\n"+
			"\ti2cbb [flags] recover\n")
		flag.PrintDefaults()
	}
	sclName := flag.String("scl", "GPIO3", "SCL pin name.")
	sdaName := flag.String("sda", "GPIO2", "SDA pin name.")
	freq := flag.Uint("freq", 100_000, "Bus frequency in Hz. Up to 100kHz selects standard mode, up to 400kHz fast mode.")
	verbose := flag.Bool("v", false, "Log bus activity.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	scl := gpioreg.ByName(*sclName)
	sda := gpioreg.ByName(*sdaName)
	if scl == nil || sda == nil {
		log.Fatalf("pins %q/%q not found", *sclName, *sdaName)
	}
	lines, err := gpiolines.New(scl, sda)
	if err != nil {
		log.Fatal(err)
	}
	bus, err := i2cbb.NewBus(lines, i2cbb.BusConfig{
		Name:      "i2cbb",
		Frequency: uint32(*freq),
		Logger:    logger,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := run(bus, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

var errUsage = errors.New("bad arguments, see -h")

func run(bus *i2cbb.Bus, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "scan":
		if len(args) != 0 {
			return errUsage
		}
		found, err := bus.Scan()
		if err != nil {
			return err
		}
		for _, addr := range found {
			fmt.Printf("%#02x\n", addr)
		}
		slog.Info("scan done", slog.Int("found", len(found)))
		return nil

	case "recover":
		return bus.RecoverBus()

	case "read":
		if len(args) != 2 {
			return errUsage
		}
		d, err := device(bus, args[0])
		if err != nil {
			return err
		}
		n, err := parseCount(args[1])
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if err := d.Tx(nil, buf); err != nil {
			return err
		}
		fmt.Printf("% x\n", buf)
		return nil

	case "write":
		if len(args) < 2 {
			return errUsage
		}
		d, err := device(bus, args[0])
		if err != nil {
			return err
		}
		buf, err := parseBytes(args[1:])
		if err != nil {
			return err
		}
		_, err = d.Write(buf)
		return err

	case "readreg":
		if len(args) != 3 {
			return errUsage
		}
		d, err := device(bus, args[0])
		if err != nil {
			return err
		}
		reg, err := parseBytes(args[1:2])
		if err != nil {
			return err
		}
		n, err := parseCount(args[2])
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if err := d.Tx(reg, buf); err != nil {
			return err
		}
		fmt.Printf("% x\n", buf)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func device(bus i2c.Bus, s string) (*i2c.Dev, error) {
	addr, err := parseAddr(s)
	if err != nil {
		return nil, err
	}
	return &i2c.Dev{Bus: bus, Addr: addr}, nil
}

func parseAddr(s string) (uint16, error) {
	v, err := parseUint[uint16](s)
	if err != nil {
		return 0, err
	}
	if v > 0x7f {
		return 0, fmt.Errorf("address %#x out of 7-bit range", v)
	}
	return v, nil
}

func parseCount(s string) (int, error) {
	n, err := parseUint[uint16](s)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("zero length read")
	}
	return int(n), nil
}

func parseBytes(args []string) ([]byte, error) {
	buf := make([]byte, len(args))
	for i, s := range args {
		v, err := parseUint[uint8](s)
		if err != nil {
			return nil, err
		}
		buf[i] = v
	}
	return buf, nil
}

// parseUint parses a decimal, 0x hex or 0b binary integer that must fit in T.
func parseUint[T constraints.Unsigned](s string) (T, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, err
	}
	if v > uint64(^T(0)) {
		return 0, fmt.Errorf("%s out of range, max %d", s, ^T(0))
	}
	return T(v), nil
}
