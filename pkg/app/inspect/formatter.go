package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput formats inspection results according to output format
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
	v := response.Volume
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Source", v.Source},
		{"Label", v.Label},
		{"NTFS version", v.Version},
		{"Serial number", v.SerialNumber},
		{"Bytes per sector", fmt.Sprint(v.BytesPerSector)},
		{"Sectors per cluster", fmt.Sprint(v.SectorsPerCluster)},
		{"Cluster size", fmt.Sprint(v.ClusterSize)},
		{"Total sectors", fmt.Sprint(v.TotalSectors)},
		{"Volume size", fmt.Sprintf("%d (%s)", v.VolumeSize, formatBytes(v.VolumeSize))},
		{"$MFT cluster", fmt.Sprint(v.MftCluster)},
		{"$MFTMirr cluster", fmt.Sprint(v.MftMirrorCluster)},
		{"File record size", fmt.Sprint(v.RecordSize)},
		{"Index block size", fmt.Sprint(v.IndexBlockSize)},
		{"MFT records", fmt.Sprint(v.MftRecords)},
		{"MFT fragments", fmt.Sprint(len(v.MftExtents))},
		{"Collation table", v.UpCaseSource},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n$MFT run list:\n")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "VCN\tLCN\tCLUSTERS\n")
	fmt.Fprintf(tw, "---\t---\t--------\n")
	for _, e := range v.MftExtents {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", e.VCN, e.LCN, e.Clusters)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r := response.Record; r != nil {
		fmt.Fprintf(w, "\nRecord %s (in use: %t, directory: %t)\n", r.Reference, r.InUse, r.Directory)
		for _, name := range r.Names {
			fmt.Fprintf(w, "  name: %s\n", name)
		}
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "TYPE\tNAME\tRESIDENT\tSIZE\tSEGMENT\tRUNS\n")
		fmt.Fprintf(tw, "----\t----\t--------\t----\t-------\t----\n")
		for _, a := range r.Attributes {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%d\n", a.Type, a.Name, a.Resident, a.Size, a.Segment, len(a.Extents))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
