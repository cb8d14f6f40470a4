package devices

import "testing"

func newTestLatte() *Latte {
	l := NewLatte(false, func() uint32 { return 0 })
	var words [256]uint32
	for i := range words {
		words[i] = uint32(i) * 0x01010101
	}
	l.OTP = NewOTP(words)
	l.ASICBus = NewASICBus(func() uint32 { return 0 })
	seeprom := NewSEEPROM([256]uint16{}, func() uint32 { return 0 })
	l.GPIO = NewGPIO(newGPIOGroup1(seeprom, func() uint32 { return 0 }), func() uint32 { return 0 })
	l.GPIO2 = NewGPIO(newGPIOGroup2(func() uint32 { return 0 }), func() uint32 { return 0 })
	l.I2C = NewI2C(l.GPIO2, false, func() uint32 { return 0 })
	l.I2CPPC = NewI2C(l.GPIO2, true, func() uint32 { return 0 })
	return l
}

func TestLatteOTPCommand(t *testing.T) {
	l := newTestLatte()

	const bank, index = 3, 7
	if err := l.Write(ltOTPCmd, 4, 0x80000000|(bank<<8)|index); err != nil {
		t.Fatal(err)
	}
	got, err := l.Read(ltOTPData, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := uint64(bank*0x20+index) * 0x01010101
	if got != want {
		t.Fatalf("otp data: got %#x want %#x", got, want)
	}
}

func TestLatteTimerAlarm(t *testing.T) {
	l := newTestLatte()

	if err := l.Write(ltAlarm, 4, 1000); err != nil {
		t.Fatal(err)
	}
	l.UpdateTimer(400)
	if l.IRQARM.ReadStatusAll()&1 != 0 {
		t.Fatal("alarm line raised before the alarm value was crossed")
	}
	l.UpdateTimer(700)
	if l.IRQARM.ReadStatusAll()&1 == 0 {
		t.Fatal("alarm line not raised after crossing the alarm value")
	}
}

func TestLatteTimerAlarmWraparound(t *testing.T) {
	l := newTestLatte()

	if err := l.Write(ltTimer, 4, 0xFFFFFF00); err != nil {
		t.Fatal(err)
	}
	if err := l.Write(ltAlarm, 4, 0x10); err != nil {
		t.Fatal(err)
	}
	l.UpdateTimer(0x200)
	if l.IRQARM.ReadStatusAll()&1 == 0 {
		t.Fatal("alarm line not raised across timer wraparound")
	}
}

func TestLatteIRQWindowDispatch(t *testing.T) {
	l := newTestLatte()

	// Mask and trigger through the ARM aggregator's register window.
	if err := l.Write(ltIRQARMStart+0x8, 4, 1<<5); err != nil {
		t.Fatal(err)
	}
	l.IRQARM.TriggerAll(5)
	got, err := l.Read(ltIRQARMStart, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got&(1<<5) == 0 {
		t.Fatalf("status readback: got %#x", got)
	}

	// Write-one-to-clear through the same window.
	if err := l.Write(ltIRQARMStart, 4, 1<<5); err != nil {
		t.Fatal(err)
	}
	if l.IRQARM.ReadStatusAll()&(1<<5) != 0 {
		t.Fatal("status bit survived a write-one-to-clear")
	}
}

func TestLatteIPCUpstreamRaisesARMLine(t *testing.T) {
	l := newTestLatte()

	// Mailbox 0: the PPC side raises x1 with interrupts enabled on the ARM
	// side, so polling the ARM aggregator latches the mailbox line.
	l.IPC[0].Write(ipcPPCCtrl, 1)
	l.IPC[0].Write(ipcARMCtrl, 0x10)
	l.IRQARM.WriteMaskLT(1 << 31)

	if !l.IRQARM.CheckInterrupts() {
		t.Fatal("mailbox handshake did not surface on the ARM aggregator")
	}
	if l.IRQARM.ReadStatusLT()&(1<<31) == 0 {
		t.Fatal("mailbox 0 line should latch in the _lt status word")
	}
}
