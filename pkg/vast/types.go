package vast

import (
	"fmt"
	"time"
)

// Offer is one rentable machine on the marketplace.
type Offer struct {
	ID          int64   `json:"id"`
	GPUName     string  `json:"gpu_name"`
	NumGPUs     int     `json:"num_gpus"`
	GPURAM      float64 `json:"gpu_ram"`
	DPHTotal    float64 `json:"dph_total"`
	Reliability float64 `json:"reliability2"`
	InetDown    float64 `json:"inet_down"`
	DiskSpace   float64 `json:"disk_space"`
	DLPerf      float64 `json:"dlperf"`
	Rented      bool    `json:"rented"`
	Verified    bool    `json:"verified"`
}

// PortMapping is one host port published for a container port.
type PortMapping struct {
	HostIP   string `json:"HostIp"`
	HostPort string `json:"HostPort"`
}

// Instance is one rented machine.
type Instance struct {
	ID           int64                    `json:"id"`
	ActualStatus string                   `json:"actual_status"`
	GPUName      string                   `json:"gpu_name"`
	GPURAM       float64                  `json:"gpu_ram"`
	DPHTotal     float64                  `json:"dph_total"`
	SSHHost      string                   `json:"ssh_host"`
	SSHPort      int                      `json:"ssh_port"`
	PublicIP     string                   `json:"public_ipaddr"`
	Ports        map[string][]PortMapping `json:"ports"`
	StartDate    float64                  `json:"start_date"`
	InetDown     float64                  `json:"inet_down"`
	Reliability  float64                  `json:"reliability2"`
	DiskSpace    float64                  `json:"disk_space"`
}

// Running reports whether the instance's container is up.
func (i *Instance) Running() bool {
	return i.ActualStatus == "running"
}

// URL returns the public endpoint for a container TCP port, or "" when the
// mapping is not published yet.
func (i *Instance) URL(port int) string {
	mappings, ok := i.Ports[fmt.Sprintf("%d/tcp", port)]
	if !ok || len(mappings) == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%s", mappings[0].HostIP, mappings[0].HostPort)
}

// Uptime returns how long the instance has been up at the given time.
func (i *Instance) Uptime(now time.Time) time.Duration {
	if i.StartDate <= 0 {
		return 0
	}
	start := time.Unix(int64(i.StartDate), 0)
	if now.Before(start) {
		return 0
	}
	return now.Sub(start)
}

// CostSoFar returns the accrued rental cost in dollars at the given time.
func (i *Instance) CostSoFar(now time.Time) float64 {
	return i.Uptime(now).Hours() * i.DPHTotal
}
