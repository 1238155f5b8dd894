// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

// DecodeSamples converts a payload into transition timestamps, two bytes
// per sample, low byte first. A trailing odd byte is ignored.
func DecodeSamples(payload []byte) []uint16 {
	n := len(payload) / BytesPerSample
	samples := make([]uint16, n)
	for i := 0; i < n; i++ {
		samples[i] = uint16(payload[2*i+1])<<8 + uint16(payload[2*i])
	}
	return samples
}

// EncodeSamples is the inverse of DecodeSamples
func EncodeSamples(samples []uint16) []byte {
	payload := make([]byte, 0, len(samples)*BytesPerSample)
	for _, s := range samples {
		payload = append(payload, byte(s), byte(s>>8))
	}
	return payload
}

// MaxSample returns the largest timestamp, or -1 for an empty sequence
func MaxSample(samples []uint16) int {
	max := -1
	for _, s := range samples {
		if int(s) > max {
			max = int(s)
		}
	}
	return max
}

// IsMonotonic returns true if timestamps never decrease
func IsMonotonic(samples []uint16) bool {
	for i := 1; i < len(samples); i++ {
		if samples[i] < samples[i-1] {
			return false
		}
	}
	return true
}
