package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/hamster.go/pkg/env"
	fx "github.com/robotalks/hamster.go/pkg/framework"
	"github.com/robotalks/hamster.go/pkg/l0/device"
)

var (
	period  = time.Second
	sensors = "proximity,floor,light,acceleration,battery"
)

func init() {
	env.SetupFlags()
	flag.DurationVar(&period, "period", period, "Interval of sensor reports, 0 to disable.")
	flag.StringVar(&sensors, "sensors", sensors, "Comma separated sensor name prefixes to report.")
}

func selectSensors(prefixes string) (ids []device.ID) {
	for _, spec := range device.All() {
		if spec.Category != device.Sensor {
			continue
		}
		for _, prefix := range strings.Split(prefixes, ",") {
			if prefix = strings.TrimSpace(prefix); prefix == "" {
				continue
			}
			if strings.HasPrefix(spec.Name, prefix) || strings.HasSuffix(spec.Name, prefix) {
				ids = append(ids, spec.ID)
				break
			}
		}
	}
	return
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf := env.Default()
	if err := conf.Resolve(flag.CommandLine); err != nil {
		log.Fatalln(err)
	}
	client := conf.MustOpen(context.Background())
	defer client.Close()
	ids := selectSensors(sensors)

	err := fx.NewRunner().HandleSignals().Go(
		fx.NamedRun("events", fx.RunFunc(func(ctx context.Context) error {
			sub := client.Subscribe()
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev, ok := <-sub.C():
					if !ok {
						return nil
					}
					log.Printf("event %s %v", ev.Device, ev.Values)
				}
			}
		})),
		fx.NamedRun("sensors", fx.RunFunc(func(ctx context.Context) error {
			if period <= 0 || len(ids) == 0 {
				return nil
			}
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					var fields []string
					for _, id := range ids {
						fields = append(fields, id.String()+"="+device.FormatValues(client.Read(id), ","))
					}
					log.Printf("sensors %s", strings.Join(fields, " "))
				}
			}
		})),
	).Wait()
	if err != nil {
		glog.Errorf("robomon: %v", err)
	}
}
