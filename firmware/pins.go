//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 5000 // AVcc reference in millivolts
	ADC_RESOLUTION   = 10   // Reported resolution in bits (0-1023)

	// PWM configuration
	PWM_FULL_SCALE = 255                 // Largest accepted set code
	PWM_PERIOD_NS  = 1_000_000_000 / 980 // ~980Hz like analogWrite on D5

	// Frame configuration
	FRAME_TERMINATOR = 'c'
	MAX_FRAME_LENGTH = 16

	// Serial configuration
	// Requests are "get 0c" or "set 255c", responses at most "1023\r\n".
	// One round trip every 10ms needs ~1,300 baud, 9600 leaves plenty of headroom.
	UART_BAUD_RATE = 9600
)

var (
	// Probe number to analog pin, as used in "get <n>c"
	probePins = [...]machine.Pin{
		0: machine.ADC0, // Sense resistor
		1: machine.ADC1, // Emitter through 1:2 divider
	}

	// Drive output, OC0B
	PIN_OUTPUT = machine.D5
	pwmTimer   = machine.Timer0
)
