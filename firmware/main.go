//go:build tinygo

//go:generate tinygo flash -target=arduino

package main

import (
	"bytes"
	"machine"
	"strconv"
	"time"
)

var (
	adcs [len(probePins)]machine.ADC
	uart = machine.UART0

	pwmChannel uint8

	// Serial buffer for reading frames
	frameBuffer [MAX_FRAME_LENGTH]byte
	framePos    int
	overflow    bool
)

func main() {
	machine.InitADC()
	for i, pin := range probePins {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
	}

	if err := pwmTimer.Configure(machine.PWMConfig{Period: PWM_PERIOD_NS}); err != nil {
		halt()
	}
	ch, err := pwmTimer.Channel(PIN_OUTPUT)
	if err != nil {
		halt()
	}
	pwmChannel = ch
	setOutput(0)

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	for {
		processSerial()
		time.Sleep(100 * time.Microsecond)
	}
}

// halt blinks the on-board LED forever.
func halt() {
	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		machine.LED.High()
		time.Sleep(100 * time.Millisecond)
		machine.LED.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		switch {
		case data == FRAME_TERMINATOR:
			if overflow {
				reply("?")
			} else {
				handleFrame(frameBuffer[:framePos])
			}
			framePos = 0
			overflow = false
		case data == '\n' || data == '\r':
			// Line endings between frames are ignored
		case framePos < len(frameBuffer):
			frameBuffer[framePos] = data
			framePos++
		default:
			overflow = true
		}
	}
}

// handleFrame answers "get <n>" with the ADC code of probe n and
// "set <code>" with 0 after updating the output, 1 when the code is out of
// range. Anything else is answered with "?".
func handleFrame(frame []byte) {
	cmd, arg, ok := bytes.Cut(frame, []byte{' '})
	if !ok {
		reply("?")
		return
	}

	n, err := strconv.Atoi(string(arg))
	if err != nil {
		reply("?")
		return
	}

	switch string(cmd) {
	case "get":
		if n < 0 || n >= len(adcs) {
			reply("?")
			return
		}
		reply(strconv.Itoa(readADC(n)))
	case "set":
		if n < 0 || n > PWM_FULL_SCALE {
			reply("1")
			return
		}
		setOutput(n)
		reply("0")
	default:
		reply("?")
	}
}

// readADC returns a probe reading scaled to ADC_RESOLUTION bits.
func readADC(probe int) int {
	return int(adcs[probe].Get() >> (16 - ADC_RESOLUTION))
}

func setOutput(code int) {
	top := pwmTimer.Top()
	pwmTimer.Set(pwmChannel, top*uint32(code)/PWM_FULL_SCALE)
}

func reply(s string) {
	uart.Write([]byte(s))
	uart.Write([]byte("\r\n"))
}
