package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nxsim/nxsim/dmnt"
	"github.com/nxsim/nxsim/gmmu"
)

var cheatCmd = &cobra.Command{
	Use:   "cheat [cheat file]",
	Short: "Execute cheat programs against a flat memory image.",
	Long: "`cheat` parses a text cheat file, one `[name]` or `{name}` " +
		"section per program with 8-hex-digit opcode words, and runs each " +
		"program once against a zeroed flat memory image.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		programs, err := parseCheatFile(args[0])
		if err != nil {
			log.Fatalf("Error parsing cheat file: %v", err)
		}

		memSize := sizeFlagMB(cmd, "memory-size")
		mainBase := addrFlag(cmd, "main-base")
		heapBase := addrFlag(cmd, "heap-base")
		if mainBase >= heapBase || heapBase >= memSize {
			log.Fatalf(
				"Error: need main base %#x < heap base %#x < memory size %#x",
				mainBase, heapBase, memSize)
		}

		keys := addrFlag(cmd, "keys")
		verbose, _ := cmd.Flags().GetBool("verbose")

		process := &guestProcess{
			mem:     gmmu.NewFlatMemory(memSize),
			keys:    keys,
			verbose: verbose,
		}
		metadata := dmnt.Metadata{
			MainNSOBase: mainBase,
			MainNSOSize: heapBase - mainBase,
			HeapBase:    heapBase,
			HeapSize:    memSize - heapBase,
		}

		vm := dmnt.NewVM(process)
		for _, p := range programs {
			fmt.Printf("Running %q, %d words\n", p.name, len(p.words))

			if !vm.LoadProgram(p.words) {
				log.Fatalf("Error: program %q does not load", p.name)
			}
			vm.Execute(metadata)
		}
	},
}

// guestProcess adapts a flat memory image to the cheat VM callbacks.
type guestProcess struct {
	mem     *gmmu.FlatMemory
	keys    uint64
	verbose bool
}

func (p *guestProcess) MemoryRead(addr uint64, buf []byte) {
	p.mem.ReadBlock(addr, buf)
}

func (p *guestProcess) MemoryWrite(addr uint64, data []byte) {
	p.mem.WriteBlock(addr, data)

	if p.verbose {
		fmt.Printf("write %#x: % x\n", addr, data)
	}
}

func (p *guestProcess) HidKeysDown() uint64 {
	return p.keys
}

func (p *guestProcess) DebugLog(logID uint8, value uint64) {
	fmt.Printf("log %d: %#x\n", logID, value)
}

func (p *guestProcess) CommandLog(msg string) {
	log.Printf("cheat vm: %s", msg)
}

type cheatProgram struct {
	name  string
	words []uint32
}

func parseCheatFile(path string) ([]cheatProgram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var programs []cheatProgram
	current := -1

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") || strings.HasPrefix(line, "{") {
			name := strings.Trim(line, "[]{}")
			programs = append(programs, cheatProgram{name: name})
			current = len(programs) - 1
			continue
		}

		if current < 0 {
			programs = append(programs, cheatProgram{name: "cheat"})
			current = 0
		}

		for _, token := range strings.Fields(line) {
			word, err := strconv.ParseUint(token, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("bad opcode word %q", token)
			}

			programs[current].words = append(
				programs[current].words, uint32(word))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return programs, nil
}

func addrFlag(cmd *cobra.Command, name string) uint64 {
	value, _ := cmd.Flags().GetString(name)

	parsed, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		log.Fatalf("Error: invalid --%s value %q", name, value)
	}

	return parsed
}

func sizeFlagMB(cmd *cobra.Command, name string) uint64 {
	size, _ := cmd.Flags().GetUint64(name)
	if size == 0 {
		log.Fatalf("Error: --%s must be positive", name)
	}

	return size << 20
}

func init() {
	rootCmd.AddCommand(cheatCmd)
	cheatCmd.Flags().Uint64("memory-size", 64,
		"Flat memory image size in MiB")
	cheatCmd.Flags().String("main-base", "0x0",
		"Main NSO base address in the image")
	cheatCmd.Flags().String("heap-base", "0x2000000",
		"Heap base address in the image")
	cheatCmd.Flags().String("keys", "0x0",
		"Held button mask reported to keypress conditionals")
	cheatCmd.Flags().Bool("verbose", false,
		"Print every memory write the programs perform")
}
