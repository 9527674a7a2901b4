package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/i2cbb/analyze"
)

type printer struct {
	// Only print frames addressed to Addr. Negative prints all.
	Addr       int
	OmitNacked bool
	Timings    bool
}

func main() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "i2canalyze - Decode I2C transactions from binary Saleae digital data files.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	scl := flag.String("f-scl", "digital_0.bin", "Input filename: SCL data.")
	sda := flag.String("f-sda", "digital_1.bin", "Input filename: SDA data.")
	output := flag.String("o", "", "Output filename of decoded frames. Empty writes to stdout.")
	addr := flag.Int("addr", -1, "Only output frames addressed to this 7-bit address.")
	omitNacked := flag.Bool("omit-nack", false, "Omit frames whose address was not acknowledged.")
	timings := flag.Bool("t", false, "Print measured SCL timing before the frames.")
	flag.Parse()
	if *addr > 0x7f {
		log.Fatal("address out of 7-bit range: ", *addr)
	}
	p := printer{Addr: *addr, OmitNacked: *omitNacked, Timings: *timings}
	start := time.Now()
	if err := p.run(*scl, *sda, *output); err != nil {
		log.Fatal(err.Error())
	}
	slog.Debug("finished", slog.Duration("elapsed", time.Since(start)))
}

func (p *printer) run(fscl, fsda, output string) error {
	scl, err := analyze.ReadDigitalFile(fscl)
	if err != nil {
		return err
	}
	sda, err := analyze.ReadDigitalFile(fsda)
	if err != nil {
		return err
	}
	frames, err := analyze.Decode(scl, sda)
	if err != nil {
		return err
	}
	slog.Info("decoded", slog.Int("frames", len(frames)), slog.Int("scl-edges", len(scl.Transitions)))

	var w io.Writer = os.Stdout
	if output != "" {
		fp, err := os.Create(output)
		if err != nil {
			return err
		}
		defer fp.Close()
		w = fp
	}
	if p.Timings {
		tm := analyze.MeasureSCL(scl)
		fmt.Fprintf(w, "# tLOW=%.3gs tHIGH=%.3gs max %.0fHz\n", tm.Low, tm.High, tm.Frequency())
	}
	return p.print(w, frames)
}

func (p *printer) print(w io.Writer, frames []analyze.Frame) (err error) {
	for _, f := range frames {
		if !p.keep(f) {
			continue
		}
		_, err = fmt.Fprintf(w, "t=%f\t%s\n", f.Start, f.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) keep(f analyze.Frame) bool {
	if p.Addr >= 0 && int(f.Addr) != p.Addr {
		return false
	}
	return !(p.OmitNacked && !f.AddrAck)
}
