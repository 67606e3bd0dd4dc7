package vcf

// SplitMultiAllelic splits a multi-allelic variant into one variant per
// alternate allele. Number=A fields keep the element of that allele,
// Number=R fields keep the reference element and that allele's element, and
// Number=G fields are dropped since their genotype ordering no longer
// applies. Genotype indices of the kept allele become 1; indices of the
// other alternates become 0, as bcftools norm -m-both does.
func SplitMultiAllelic(v *Variant, h *Header) []*Variant {
	if len(v.Alt) <= 1 {
		return []*Variant{v}
	}

	variants := make([]*Variant, len(v.Alt))
	for i, alt := range v.Alt {
		nv := v.Clone()
		nv.Alt = []string{alt}

		nv.Info = NewInfo()
		for _, key := range v.Info.Keys() {
			val, _ := v.Info.Get(key)
			if split, keep := splitValue(val, h.Infos[key], i, len(v.Alt)); keep {
				nv.Info.Set(key, split)
			}
		}

		for s, sample := range v.Samples {
			if len(sample) == 0 {
				continue
			}
			for _, key := range v.Format {
				val := sample[key]
				if key == "GT" {
					nv.Samples[s][key] = remapGenotype(val, i)
					continue
				}
				split, keep := splitValue(val, h.Formats[key], i, len(v.Alt))
				if !keep {
					split = MissingValue(val.Kind())
				}
				nv.Samples[s][key] = split
			}
		}

		variants[i] = nv
	}

	return variants
}

// splitValue slices val for alternate allele alt. It reports false when the
// field should be dropped.
func splitValue(val Value, def *FieldDef, alt, nAlt int) (Value, bool) {
	if def == nil {
		return val, true
	}
	switch def.Number {
	case "A":
		if val.Len() != nAlt {
			return val, true
		}
		return val.Pick(alt), true
	case "R":
		if val.Len() != nAlt+1 {
			return val, true
		}
		return val.Pick(0, alt+1), true
	case "G":
		return Value{}, false
	}
	return val, true
}

func remapGenotype(val Value, alt int) Value {
	text, ok := val.Str(0)
	if !ok {
		return val
	}
	g, err := ParseGenotype(text)
	if err != nil {
		return val
	}
	for j, a := range g.Alleles {
		switch {
		case a == alt+1:
			g.Alleles[j] = 1
		case a > 0:
			g.Alleles[j] = 0
		}
	}
	return StringValue(g.String())
}
