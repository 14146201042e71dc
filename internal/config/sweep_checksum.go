package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

type sweepChecksumPayload struct {
	Program string   `json:"program"`
	Image   string   `json:"image"`
	Port    uint16   `json:"port"`
	CPUs    []int    `json:"cpus"`
	Runs    int      `json:"runs"`
	Env     []string `json:"env,omitempty"`
}

// SweepChecksum returns a short, stable checksum of what a measurement sweep
// executes, so spooled sessions of the same sweep can be grouped.
//
// It computes MD5 over a canonical JSON representation and returns the first 6 hex
// characters (equivalent to `md5sum | cut -c1-6`).
func SweepChecksum(p *Profile, plan []int) (string, error) {
	if p == nil {
		return "", nil
	}

	payload := sweepChecksumPayload{
		Program: p.Program,
		Image:   p.Image,
		Port:    p.Port,
		CPUs:    plan,
		Runs:    p.RunCount(),
		Env:     p.EnvList(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}
