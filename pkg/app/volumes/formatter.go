package volumes

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput formats a volume listing according to output format
func FormatOutput(w io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(response)
	case "table":
		return formatTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatTable(w io.Writer, response *Response) error {
	if response.Count() == 0 {
		fmt.Fprintf(w, "No NTFS volumes found (%s).\n", response.Source)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if response.Source == hostSource {
		fmt.Fprintf(tw, "DEVICE\tMOUNTPOINT\tFILESYSTEM\tRAW PATH\n")
		fmt.Fprintf(tw, "------\t----------\t----------\t--------\n")
		for _, v := range response.Host {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Device, v.Mountpoint, v.Fstype, v.RawPath)
		}
	} else {
		fmt.Fprintf(w, "Image: %s\n\n", response.Source)
		fmt.Fprintf(tw, "PARTITION\tTABLE\tOFFSET\tSIZE\tNTFS\n")
		fmt.Fprintf(tw, "---------\t-----\t------\t----\t----\n")
		for _, p := range response.Partitions {
			ntfs := "no"
			if p.IsNTFS {
				ntfs = "yes"
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", p.Index, p.Table, p.Start, p.Size, ntfs)
		}
	}
	return tw.Flush()
}
