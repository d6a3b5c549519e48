package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/gpfifo"
	"github.com/nxsim/nxsim/services"
)

var replayCmd = &cobra.Command{
	Use:   "replay [dump file]",
	Short: "Replay a recorded pushbuffer dump through the GPU.",
	Long: "`replay` loads raw little-endian command words, maps them into " +
		"the GPU address space, and dispatches them as one command list. " +
		"With --channel the words go through the channel-DMA pusher " +
		"instead.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		words, err := loadDump(args[0])
		if err != nil {
			log.Fatalf("Error loading dump: %v", err)
		}

		b := services.MakeBuilder().WithoutMonitoring()
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			b = b.WithOutputFileName(out)
		}
		emulation := b.Build()
		defer emulation.Terminate()

		if viaChannel, _ := cmd.Flags().GetBool("channel"); viaChannel {
			emulation.GPU().PushCommandBuffer(words)
		} else {
			dispatchCommandList(emulation, words)
		}

		emulation.GPU().WaitIdle()
		fmt.Printf("Replayed %d words in %d GPU ticks\n",
			len(words), emulation.GPU().GetTicks())
	},
}

func loadDump(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf(
			"dump size %d is not a positive multiple of 4", len(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[4*i:])
	}

	return words, nil
}

func dispatchCommandList(emulation *services.Emulation, words []uint32) {
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[4*i:], w)
	}

	gpuAddr, err := emulation.Memory().MapAllocate(
		0, uint64(len(data)), gmmu.PageSize)
	if err != nil {
		log.Fatalf("Error mapping dump: %v", err)
	}
	emulation.Memory().WriteBlock(gpuAddr, data)

	header := gpfifo.MakeCommandListHeader(gpuAddr, uint64(len(words)), false)
	emulation.GPU().PushGPUEntries(gpfifo.CommandList{header})
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("channel", false,
		"Feed the words through the channel-DMA pusher")
	replayCmd.Flags().String("output", "",
		"Recording database file name")
}
