package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/vcard"
)

func (d *Dispatcher) generate(ctx context.Context, job Job) (result, error) {
	var res result
	numbers := job.Numbers
	if len(job.Files) > 0 {
		perFile := make([][]string, len(job.Files))
		errs := d.each(ctx, len(job.Files), func(ctx context.Context, i int) error {
			data, err := d.read(ctx, job.Files[i])
			if err != nil {
				return err
			}
			perFile[i] = vcard.ExtractNumbers(string(data))
			return nil
		})
		res.failed = d.reportFailures(ctx, job, errs, fmtProcessFailed)
		numbers = nil
		for _, n := range perFile {
			numbers = append(numbers, n...)
		}
		if len(numbers) == 0 {
			d.notify(ctx, job.ChatID, msgNoNumbersFiles)
			return res, nil
		}
	}
	res.numbers = len(numbers)
	if len(numbers) == 0 {
		d.notify(ctx, job.ChatID, msgNoNumbers)
		return res, nil
	}

	cpf := job.Config.ContactsPerFile
	if cpf <= 0 {
		d.notify(ctx, job.ChatID, msgBadConfig)
		return res, nil
	}

	chunks := Chunk(numbers, cpf, job.Config.BaseContactName)
	outs := make([]*output, len(chunks))
	for i, contacts := range chunks {
		outs[i] = &output{
			name: fmt.Sprintf("%s_%d%s", job.Config.FileName, i+1, vcard.Ext),
			data: []byte(vcard.BuildCards(contacts)),
		}
	}
	res.filesOut = d.sendAll(ctx, job.ChatID, outs)
	res.failed += len(outs) - res.filesOut
	d.notify(ctx, job.ChatID, fmt.Sprintf(fmtGenerated, res.filesOut, cpf))
	return res, nil
}

// Chunk splits numbers into groups of size per. Contacts are named
// "{base} {n}" where n is the 1-based position across all numbers.
func Chunk(numbers []string, per int, base string) [][]vcard.Contact {
	if per <= 0 || len(numbers) == 0 {
		return nil
	}
	chunks := make([][]vcard.Contact, 0, (len(numbers)+per-1)/per)
	for start := 0; start < len(numbers); start += per {
		end := start + per
		if end > len(numbers) {
			end = len(numbers)
		}
		group := make([]vcard.Contact, 0, end-start)
		for i := start; i < end; i++ {
			group = append(group, vcard.Contact{
				Name:  fmt.Sprintf("%s %d", base, i+1),
				Phone: numbers[i],
			})
		}
		chunks = append(chunks, group)
	}
	return chunks
}

func (d *Dispatcher) count(ctx context.Context, job Job) (result, error) {
	var res result
	type tally struct {
		contacts int
		phones   []string
	}
	tallies := make([]tally, len(job.Files))
	errs := d.each(ctx, len(job.Files), func(ctx context.Context, i int) error {
		data, err := d.read(ctx, job.Files[i])
		if err != nil {
			return err
		}
		if vcard.IsCardFile(job.Files[i].Name) {
			cards := vcard.ParseCards(string(data))
			phones := make([]string, len(cards))
			for j, c := range cards {
				phones[j] = c.Phone
			}
			tallies[i] = tally{contacts: len(cards), phones: phones}
			return nil
		}
		tallies[i] = tally{phones: vcard.ExtractNumbers(string(data))}
		return nil
	})
	res.failed = d.reportFailures(ctx, job, errs, fmtProcessFailed)

	total := 0
	unique := make(map[string]struct{})
	for _, t := range tallies {
		total += t.contacts
		for _, p := range t.phones {
			unique[p] = struct{}{}
		}
	}
	res.numbers = len(unique)
	if total > 0 {
		d.notify(ctx, job.ChatID, fmt.Sprintf(fmtCountWithCards, total, len(unique)))
	} else {
		d.notify(ctx, job.ChatID, fmt.Sprintf(fmtCountNumbers, len(unique)))
	}
	return res, nil
}

func (d *Dispatcher) addContact(ctx context.Context, job Job) (result, error) {
	var res result
	name, phone := job.Instruction.AddName, job.Instruction.AddPhone
	if name == "" || phone == "" {
		d.notify(ctx, job.ChatID, msgNoContact)
		return res, nil
	}
	added := vcard.Contact{Name: name, Phone: phone}

	outs := make([]*output, len(job.Files))
	errs := d.each(ctx, len(job.Files), func(ctx context.Context, i int) error {
		data, err := d.read(ctx, job.Files[i])
		if err != nil {
			return err
		}
		contacts := append(vcard.ParseCards(string(data)), added)
		outs[i] = &output{name: job.Files[i].Name, data: []byte(vcard.BuildCards(contacts))}
		return nil
	})
	d.reportFailures(ctx, job, errs, fmtModifyFailed)
	res.filesOut = d.sendAll(ctx, job.ChatID, outs)
	res.failed = len(job.Files) - res.filesOut
	return res, nil
}

func (d *Dispatcher) renameContacts(ctx context.Context, job Job) (result, error) {
	var res result
	base := job.Instruction.NewContactName
	if base == "" {
		d.notify(ctx, job.ChatID, msgNoContactName)
		return res, nil
	}

	parsed := make([][]vcard.Contact, len(job.Files))
	errs := d.each(ctx, len(job.Files), func(ctx context.Context, i int) error {
		data, err := d.read(ctx, job.Files[i])
		if err != nil {
			return err
		}
		parsed[i] = vcard.ParseCards(string(data))
		return nil
	})
	res.failed = d.reportFailures(ctx, job, errs, fmtModifyFailed)

	offsets := Offsets(parsed)
	outs := make([]*output, len(job.Files))
	for i, contacts := range parsed {
		if errs[i] != nil {
			continue
		}
		if len(contacts) == 0 {
			d.notify(ctx, job.ChatID, fmt.Sprintf(fmtNoContactsFound, job.Files[i].Name))
			continue
		}
		renamed := make([]vcard.Contact, len(contacts))
		for j, c := range contacts {
			renamed[j] = vcard.Contact{Name: fmt.Sprintf("%s %d", base, offsets[i]+j+1), Phone: c.Phone}
		}
		outs[i] = &output{name: job.Files[i].Name, data: []byte(vcard.BuildCards(renamed))}
	}
	want := 0
	for _, o := range outs {
		if o != nil {
			want++
		}
	}
	res.filesOut = d.sendAll(ctx, job.ChatID, outs)
	res.failed += want - res.filesOut
	return res, nil
}

// Offsets returns, for every file, how many contacts precede it in input
// order. Numbering therefore never depends on which file finished first.
func Offsets(files [][]vcard.Contact) []int {
	offsets := make([]int, len(files))
	n := 0
	for i, contacts := range files {
		offsets[i] = n
		n += len(contacts)
	}
	return offsets
}

func (d *Dispatcher) renameFiles(ctx context.Context, job Job) (result, error) {
	var res result
	base := strings.TrimSpace(job.Instruction.NewFileName)
	if base == "" {
		d.notify(ctx, job.ChatID, msgNoFileName)
		return res, nil
	}

	outs := make([]*output, len(job.Files))
	errs := d.each(ctx, len(job.Files), func(ctx context.Context, i int) error {
		data, err := d.read(ctx, job.Files[i])
		if err != nil {
			return err
		}
		outs[i] = &output{name: RenamedFile(base, i), data: data}
		return nil
	})
	d.reportFailures(ctx, job, errs, fmtRenameFailed)
	res.filesOut = d.sendAll(ctx, job.ChatID, outs)
	res.failed = len(job.Files) - res.filesOut
	return res, nil
}

// RenamedFile returns the name of the file at 0-based position i.
func RenamedFile(base string, i int) string {
	return fmt.Sprintf("%s_%d%s", vcard.TrimCardExt(base), i+1, vcard.Ext)
}
