package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/google/shlex"

	"trainctl-go/internal/topology"
	"trainctl-go/internal/train"
)

// runREPL is the reference-only interactive command surface (spec.md §6):
// tr <id> <level>, rv <id>, sw <node> <straight|curved>, dest <id> <node>
// [offsetMM], random <id> <on|off>, reset <id>, q. Tokenized with
// google/shlex (so quoted node names work) the same way the reference CLI
// splits a line of input, colorized with fatih/color for errors vs. acks.
func runREPL(ctx context.Context, in io.Reader, graph *topology.Graph, c *controller) {
	errf := color.New(color.FgRed).FprintfFunc()
	okf := color.New(color.FgGreen).FprintfFunc()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		args, err := shlex.Split(line)
		if err != nil || len(args) == 0 {
			continue
		}

		if err := dispatch(ctx, args, graph, c); err != nil {
			errf(color.Output, "error: %v\n", err)
			continue
		}
		if args[0] == "q" {
			return
		}
		okf(color.Output, "ok\n")
	}
}

func dispatch(ctx context.Context, args []string, graph *topology.Graph, c *controller) error {
	switch args[0] {
	case "q":
		return nil

	case "tr":
		tr, level, err := trainAndLevel(args, c)
		if err != nil {
			return err
		}
		return tr.SetSpeed(level)

	case "lt":
		tr, on, err := trainAndBool(args, c)
		if err != nil {
			return err
		}
		return tr.SetHeadlight(on)

	case "rv":
		tr, err := findTrain(args, c)
		if err != nil {
			return err
		}
		return tr.Reverse()

	case "sw":
		if len(args) != 3 {
			return fmt.Errorf("usage: sw <node> <straight|curved>")
		}
		idx := graph.Index(args[1])
		if idx < 0 {
			return fmt.Errorf("unknown node %q", args[1])
		}
		dir := topology.DirStraight
		switch args[2] {
		case "straight":
			dir = topology.DirStraight
		case "curved":
			dir = topology.DirCurved
		default:
			return fmt.Errorf("direction must be straight or curved")
		}
		return c.cond.SetSwitch(ctx, idx, dir, true, true)

	case "dest":
		if len(args) < 3 || len(args) > 4 {
			return fmt.Errorf("usage: dest <id> <node> [offsetMM]")
		}
		tr, err := findTrain(args, c)
		if err != nil {
			return err
		}
		idx := graph.Index(args[2])
		if idx < 0 {
			return fmt.Errorf("unknown node %q", args[2])
		}
		var offset int32
		if len(args) == 4 {
			v, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("bad offset %q", args[3])
			}
			offset = int32(v)
		}
		return tr.SetDestination(idx, offset)

	case "random":
		tr, on, err := trainAndBool(args, c)
		if err != nil {
			return err
		}
		return tr.SetRandomWander(on)

	case "reset":
		tr, err := findTrain(args, c)
		if err != nil {
			return err
		}
		return tr.Reset()

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func findTrain(args []string, c *controller) (*train.Train, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: %s <id> ...", args[0])
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("bad train id %q", args[1])
	}
	tr, ok := c.trains[int32(id)]
	if !ok {
		return nil, fmt.Errorf("no such train %d", id)
	}
	return tr, nil
}

func trainAndLevel(args []string, c *controller) (*train.Train, uint8, error) {
	if len(args) != 3 {
		return nil, 0, fmt.Errorf("usage: tr <id> <level>")
	}
	tr, err := findTrain(args, c)
	if err != nil {
		return nil, 0, err
	}
	level, err := strconv.Atoi(args[2])
	if err != nil || level < 0 || level > 14 {
		return nil, 0, fmt.Errorf("speed level must be 0-14")
	}
	return tr, uint8(level), nil
}

func trainAndBool(args []string, c *controller) (*train.Train, bool, error) {
	if len(args) != 3 {
		return nil, false, fmt.Errorf("usage: %s <id> <on|off>", args[0])
	}
	tr, err := findTrain(args, c)
	if err != nil {
		return nil, false, err
	}
	switch args[2] {
	case "on":
		return tr, true, nil
	case "off":
		return tr, false, nil
	default:
		return nil, false, fmt.Errorf("expected on or off")
	}
}
