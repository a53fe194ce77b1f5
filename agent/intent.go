package main

import (
	"errors"
	"fmt"
	"strconv"

	"mtucontrol/api"
)

var errUsage = errors.New("usage")

// intent is one parsed console command. joystick selects a joystick read
// instead of req.
type intent struct {
	req      api.Request
	joystick bool
}

func parseIntent(fields []string) (intent, error) {
	if len(fields) == 0 {
		return intent{}, errUsage
	}
	args := fields[1:]

	switch fields[0] {
	case "joy":
		if len(args) == 0 {
			return intent{joystick: true}, nil
		}
		if len(args) != 1 {
			return intent{}, fmt.Errorf("%w: joy [command]", errUsage)
		}
		return intent{req: api.JoyCommand(args[0])}, nil

	case "init", "data":
		if len(args) != 1 {
			return intent{}, fmt.Errorf("%w: %s <motor>", errUsage, fields[0])
		}
		motor, err := parseMotor(args[0])
		if err != nil {
			return intent{}, err
		}
		if fields[0] == "init" {
			return intent{req: api.MotorInit(motor)}, nil
		}
		return intent{req: api.MotorData(motor)}, nil

	case "config":
		if len(args) != 3 {
			return intent{}, fmt.Errorf("%w: config <motor> <steps> <current>", errUsage)
		}
		motor, err := parseMotor(args[0])
		if err != nil {
			return intent{}, err
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil {
			return intent{}, fmt.Errorf("invalid steps %q", args[1])
		}
		current, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return intent{}, fmt.Errorf("invalid current %q", args[2])
		}
		return intent{req: api.MotorConfig(motor, steps, current)}, nil

	case "move":
		if len(args) != 4 {
			return intent{}, fmt.Errorf("%w: move <motor> <steps> <direction 1|0> <rpm>", errUsage)
		}
		motor, err := parseMotor(args[0])
		if err != nil {
			return intent{}, err
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil {
			return intent{}, fmt.Errorf("invalid steps %q", args[1])
		}
		rpm, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return intent{}, fmt.Errorf("invalid rpm %q", args[3])
		}
		return intent{req: api.MotorMove(motor, steps, api.Direction(args[2]), rpm)}, nil

	case "run":
		if len(args) != 2 {
			return intent{}, fmt.Errorf("%w: run <motor> <speed>", errUsage)
		}
		motor, err := parseMotor(args[0])
		if err != nil {
			return intent{}, err
		}
		speed, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return intent{}, fmt.Errorf("invalid speed %q", args[1])
		}
		return intent{req: api.MotorRun(motor, speed)}, nil

	case "hold", "release":
		if len(args) != 1 {
			return intent{}, fmt.Errorf("%w: %s <motor>", errUsage, fields[0])
		}
		motor, err := parseMotor(args[0])
		if err != nil {
			return intent{}, err
		}
		return intent{req: api.MotorHold(motor, fields[0] == "hold")}, nil
	}

	return intent{}, fmt.Errorf("unknown command: %s (type 'help' for available commands)", fields[0])
}

func parseMotor(s string) (int, error) {
	motor, err := strconv.Atoi(s)
	if err != nil || motor < 0 {
		return 0, fmt.Errorf("invalid motor index %q", s)
	}
	return motor, nil
}
