package devices

import (
	"encoding/binary"
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// usbDevice is the single synthetic USB device attached to each OHCI root
// hub. It answers standard control requests (GET_DESCRIPTOR et al.) with
// canned descriptors; no real device-class behaviour is modelled.
type usbDevice struct {
	data         []byte
	configValue  uint16
	pc           func() uint32
}

var (
	usbDeviceDescriptor = []byte{0x12, 0x01, 0x03, 0x10, 0x01, 0x00, 0x00, 0x10, 0x7E, 0x05, 0x05, 0x03, 0x09, 0x99, 0x01, 0x02, 0x03, 0x01}
	usbConfigDescriptor = []byte{0x09, 0x02, 0x19, 0x00, 0x01, 0x01, 0x04, 0x00, 0x32}
	usbInterfaceDescriptor = []byte{0x09, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05}
	usbEndpointDescriptor  = []byte{0x07, 0x05, 0x81, 0x00, 0x00, 0x20, 0x04}
)

func newUSBDevice(pc func() uint32) *usbDevice { return &usbDevice{pc: pc} }

// handle processes one 8-byte USB control SETUP packet.
func (u *usbDevice) handle(packet []byte) {
	if len(packet) < 8 {
		return
	}
	request := packet[1]
	value := binary.LittleEndian.Uint16(packet[2:4])

	switch request {
	case 5: // SET_ADDRESS
	case 6: // GET_DESCRIPTOR
		switch value >> 8 {
		case 1: // DEVICE
			u.data = usbDeviceDescriptor
		case 2: // CONFIGURATION
			u.data = append(append(append([]byte{}, usbConfigDescriptor...), usbInterfaceDescriptor...), usbEndpointDescriptor...)
		}
	case 9: // SET_CONFIGURATION
		u.configValue = value
	default:
		slog.Debug("usb unhandled control request", "request", request, "pc", u.pc())
	}
}

func (u *usbDevice) send(data []byte) {}

func (u *usbDevice) receive(size int) []byte {
	if size > len(u.data) {
		size = len(u.data)
	}
	return u.data[:size]
}

// OHCI is a USB 1.1 host controller with a single root port:
// endpoint/transfer descriptor linked lists walked on CMD_STATUS writes,
// completed descriptors chained onto a done-queue head the guest reads
// back via HCCA+0x84.
type OHCI struct {
	index int
	mem   phys64
	armIRQ func(line uint)
	device *usbDevice

	control, intStatus, intEnable uint32
	hcca                          uint64
	doneHead                      uint64
	frameInterval, periodicStart  uint32
	controlHeadED, bulkHeadED     uint64
	descriptorA, descriptorB      uint32

	portEnable, portSuspend, portPower bool
	portResetChange, portEnableChange  bool
	portSuspendChange                  bool

	pc func() uint32
}

// NewOHCI creates a single-port OHCI controller. armIRQ is called only for
// index==1; the other instances complete their descriptor walks without
// raising the shared USB interrupt line.
func NewOHCI(mem phys64, index int, armIRQ func(line uint), pc func() uint32) *OHCI {
	o := &OHCI{index: index, mem: mem, armIRQ: armIRQ, device: newUSBDevice(pc), pc: pc}
	o.reset()
	return o
}

func (o *OHCI) reset() {
	o.control, o.intStatus, o.hcca, o.doneHead = 0, 0, 0, 0
	o.frameInterval, o.periodicStart = 0, 0
	o.controlHeadED, o.bulkHeadED = 0, 0
	o.descriptorA = (1 << 24) | 1 // numPorts == 1
	o.descriptorB = 0
	o.portEnable, o.portSuspend, o.portPower = false, false, false
	o.portResetChange, o.portEnableChange, o.portSuspendChange = false, false, false
}

const (
	ohciRevision       = 0x00
	ohciControl        = 0x04
	ohciCmdStatus      = 0x08
	ohciIntStatus      = 0x0C
	ohciIntEnable      = 0x10
	ohciIntDisable     = 0x14
	ohciHCCA           = 0x18
	ohciControlHeadED  = 0x20
	ohciBulkHeadED     = 0x28
	ohciDoneHead       = 0x30
	ohciFMInterval     = 0x34
	ohciPeriodicStart  = 0x40
	ohciRHDescriptorA  = 0x48
	ohciRHDescriptorB  = 0x4C
	ohciRHStatus       = 0x50
	ohciRHPortStatus   = 0x54
)

func (o *OHCI) Read(offset uint64, size int) (uint64, error) {
	switch {
	case offset == ohciRevision:
		return 0x10, nil
	case offset == ohciControl:
		return uint64(o.control), nil
	case offset == ohciCmdStatus:
		return 0, nil
	case offset == ohciIntStatus:
		return uint64(o.intStatus), nil
	case offset == ohciIntEnable:
		return uint64(o.intEnable), nil
	case offset == ohciControlHeadED:
		return o.controlHeadED, nil
	case offset == ohciRHDescriptorA:
		return uint64(o.descriptorA), nil
	case offset == ohciRHDescriptorB:
		return uint64(o.descriptorB), nil
	case offset == ohciRHStatus:
		return 0, nil
	case offset == ohciRHPortStatus:
		var v uint32 = 1
		if o.portEnable {
			v |= 1 << 1
		}
		if o.portSuspend {
			v |= 1 << 2
		}
		if o.portPower {
			v |= 1 << 8
		}
		if o.portResetChange {
			v |= 1 << 20
		}
		return uint64(v), nil
	default:
		slog.Debug("ohci read of unknown offset", "index", o.index, "offset", offset, "pc", o.pc())
		return 0, nil
	}
}

func (o *OHCI) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case ohciControl:
		o.control = v
	case ohciCmdStatus:
		if v&1 != 0 {
			o.reset()
		}
		if v&2 != 0 {
			if err := o.processControl(); err != nil {
				return err
			}
		}
		if v&4 != 0 {
			if err := o.processBulk(); err != nil {
				return err
			}
		}
	case ohciIntStatus:
		o.intStatus &^= v
	case ohciIntEnable:
		o.intEnable |= v
	case ohciIntDisable:
		o.intEnable &^= v
	case ohciHCCA:
		o.hcca = uint64(v)
	case ohciControlHeadED:
		o.controlHeadED = uint64(v)
	case ohciBulkHeadED:
		o.bulkHeadED = uint64(v)
	case ohciFMInterval:
		o.frameInterval = v
	case ohciPeriodicStart:
		o.periodicStart = v
	case ohciRHDescriptorA:
		o.descriptorA = v
	case ohciRHDescriptorB:
		o.descriptorB = v
	case ohciRHStatus:
		if v&1 != 0 {
			o.portPower = false
		}
		if v&0x10000 != 0 {
			o.portPower = true
		}
	case ohciRHPortStatus:
		if v&1 != 0 {
			o.portEnable, o.portEnableChange = false, true
		}
		if v&2 != 0 {
			o.portEnable, o.portEnableChange = true, true
		}
		if v&4 != 0 {
			o.portSuspend, o.portSuspendChange = true, true
		}
		if v&8 != 0 {
			o.portSuspend, o.portSuspendChange = false, true
		}
		if v&0x10 != 0 {
			o.portResetChange = true
		}
		if v&0x100 != 0 {
			o.portPower = true
		}
		if v&0x200 != 0 {
			o.portPower = false
		}
		if v&0x20000 != 0 {
			o.portEnableChange = false
		}
		if v&0x40000 != 0 {
			o.portSuspendChange = false
		}
		if v&0x100000 != 0 {
			o.portResetChange = false
		}
	default:
		slog.Debug("ohci write to unknown offset", "index", o.index, "offset", offset, "value", v, "pc", o.pc())
	}
	return nil
}

func (o *OHCI) triggerIRQ(flag uint32) {
	o.intStatus |= flag
	if o.index == 1 {
		o.armIRQ(6)
	}
}

func (o *OHCI) processControl() error { return o.processEDs(o.controlHeadED) }
func (o *OHCI) processBulk() error    { return o.processEDs(o.bulkHeadED) }

// processEDs walks the endpoint-descriptor linked list starting at
// currentED, processing each unskipped/unhalted ED's transfer-descriptor
// chain, then posts the accumulated done-queue head back to the guest at
// HCCA+0x84.
func (o *OHCI) processEDs(currentED uint64) error {
	for currentED != 0 {
		raw, err := o.mem.Read(currentED, 0x10)
		if err != nil {
			return err
		}
		control := binary.LittleEndian.Uint32(raw[0:4])
		tailTD := uint64(binary.LittleEndian.Uint32(raw[4:8])) &^ 0xF
		currentTD := uint64(binary.LittleEndian.Uint32(raw[8:12]))
		nextED := uint64(binary.LittleEndian.Uint32(raw[12:16])) &^ 0xF

		if control&0x4000 == 0 && currentTD&1 == 0 {
			if err := o.processTDs(currentED, currentTD&^0xF, tailTD); err != nil {
				return err
			}
		}
		currentED = nextED
	}

	var doneHeadBytes [4]byte
	binary.LittleEndian.PutUint32(doneHeadBytes[:], uint32(o.doneHead))
	if err := o.mem.Write(o.hcca+0x84, doneHeadBytes[:]); err != nil {
		return err
	}
	o.doneHead = 0
	o.triggerIRQ(2)
	return nil
}

func (o *OHCI) processTDs(baseED, current, tail uint64) error {
	for current != tail {
		raw, err := o.mem.Read(current, 0x10)
		if err != nil {
			return err
		}
		control := binary.LittleEndian.Uint32(raw[0:4])
		currentPtr := uint64(binary.LittleEndian.Uint32(raw[4:8]))
		next := uint64(binary.LittleEndian.Uint32(raw[8:12]))
		endPtr := uint64(binary.LittleEndian.Uint32(raw[12:16]))

		size := (endPtr - currentPtr + 1) & 0xFFFFFFFF
		direction := (control >> 19) & 3
		switch direction {
		case 0:
			data, err := o.mem.Read(currentPtr, size)
			if err != nil {
				return err
			}
			o.device.handle(data)
		case 1:
			data, err := o.mem.Read(currentPtr, size)
			if err != nil {
				return err
			}
			o.device.send(data)
		case 2:
			data := o.device.receive(int(size))
			if err := o.mem.Write(currentPtr, data); err != nil {
				return err
			}
		default:
			return wuerr.New(wuerr.KindDeviceConfig, currentPtr, uint64(o.pc()), "ohci: DIR=RESERVED")
		}

		control &^= 0xF0000000
		var controlBytes [4]byte
		binary.LittleEndian.PutUint32(controlBytes[:], control)
		if err := o.mem.Write(current, controlBytes[:]); err != nil {
			return err
		}

		dwordRaw, err := o.mem.Read(baseED+8, 4)
		if err != nil {
			return err
		}
		dword := (binary.LittleEndian.Uint32(dwordRaw) & 0xF) | uint32(next)
		var dwordBytes [4]byte
		binary.LittleEndian.PutUint32(dwordBytes[:], dword)
		if err := o.mem.Write(baseED+8, dwordBytes[:]); err != nil {
			return err
		}

		var doneBytes [4]byte
		binary.LittleEndian.PutUint32(doneBytes[:], uint32(o.doneHead))
		if err := o.mem.Write(current+8, doneBytes[:]); err != nil {
			return err
		}
		o.doneHead = current
		current = next &^ 0xF
	}
	return nil
}
