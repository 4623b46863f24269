package device

// decodeMAX31855 converts a raw 32-bit MAX31855 frame into degrees
// Celsius. Frame layout: bits 31:18 carry the signed 14-bit thermocouple
// reading at 0.25 degC/LSB, bit 16 is the fault summary, and bits 2:0 are
// the individual fault flags (SCV, SCG, OC).
func decodeMAX31855(frame uint32) (float64, error) {
	if frame&(1<<16) != 0 {
		switch {
		case frame&0x1 != 0:
			return 0, ErrOpenCircuit
		case frame&0x2 != 0:
			return 0, ErrShortToGND
		case frame&0x4 != 0:
			return 0, ErrShortToVCC
		}
		return 0, ErrDisconnected
	}

	// All-zero or all-one frames mean the bus read nothing: the chip is
	// absent or MISO is stuck.
	if frame == 0 || frame == 0xFFFFFFFF {
		return 0, ErrDisconnected
	}

	raw := int32(frame) >> 18 // arithmetic shift sign-extends the reading
	return float64(raw) * 0.25, nil
}
