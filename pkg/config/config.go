package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors a configuration struct field by field. A value comes from,
// in order of precedence, the environment, the user file and the default tag.
type Config struct {
	Ptr     reflect.Value // the field being configured
	Env     any           // value taken from the environment
	File    any           // value taken from the user file
	Default any           // value of the default tag
	Desc    string

	name     string // lower case
	propsMap map[string]*Config
	props    []*Config
	tag      reflect.StructTag
}

var durationType = reflect.TypeOf(time.Duration(0))

func (config *Config) Get(key string) (v *Config) {
	if config.propsMap == nil {
		config.propsMap = make(map[string]*Config)
	}
	if v, ok := config.propsMap[key]; ok {
		return v
	}
	v = &Config{name: key}
	config.propsMap[key] = v
	config.props = append(config.props, v)
	return v
}

func (config *Config) Has(key string) (ok bool) {
	if config.propsMap == nil {
		return false
	}
	_, ok = config.propsMap[strings.ToLower(key)]
	return ok
}

func (config *Config) MarshalJSON() ([]byte, error) {
	if config.propsMap == nil {
		return json.Marshal(config.GetValue())
	}
	return json.Marshal(config.propsMap)
}

func (config *Config) GetValue() any {
	return config.Ptr.Interface()
}

// Parse walks the struct s points to, applying default tags and then
// environment variables named PREFIX_FIELD_SUBFIELD.
func (config *Config) Parse(s any, prefix ...string) error {
	var t reflect.Type
	var v reflect.Value
	if vv, ok := s.(reflect.Value); ok {
		t, v = vv.Type(), vv
	} else {
		t, v = reflect.TypeOf(s), reflect.ValueOf(s)
	}
	if t.Kind() == reflect.Pointer {
		t, v = t.Elem(), v.Elem()
	}

	config.Ptr = v
	config.Default = v.Interface()
	config.Desc = config.tag.Get("desc")

	if l := len(prefix); l > 0 && t.Kind() != reflect.Struct {
		name := strings.ToLower(prefix[l-1])
		if tag := config.tag.Get("default"); tag != "" {
			dv, err := config.assign(name, tag)
			if err != nil {
				return err
			}
			v.Set(dv)
			config.Default = v.Interface()
		}
		if envValue := os.Getenv(strings.Join(prefix, "_")); envValue != "" {
			ev, err := config.assign(name, envValue)
			if err != nil {
				return err
			}
			v.Set(ev)
			config.Env = v.Interface()
		}
	}

	if t.Kind() == reflect.Struct {
		for i, j := 0, t.NumField(); i < j; i++ {
			ft, fv := t.Field(i), v.Field(i)
			if !ft.IsExported() {
				continue
			}
			name := strings.ToLower(ft.Name)
			if tag := ft.Tag.Get("yaml"); tag != "" {
				if tag == "-" {
					continue
				}
				name, _, _ = strings.Cut(tag, ",")
			}
			prop := config.Get(name)
			prop.tag = ft.Tag
			if err := prop.Parse(fv, append(prefix, strings.ToUpper(ft.Name))...); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseUserFile overlays values read from a YAML file. Fields already set
// from the environment keep their value.
func (config *Config) ParseUserFile(conf map[string]any) error {
	if conf == nil {
		return nil
	}
	config.File = conf
	for k, v := range conf {
		if !config.Has(k) {
			continue
		}
		prop := config.Get(strings.ToLower(k))
		if prop.props != nil {
			if sub, ok := v.(map[string]any); ok {
				if err := prop.ParseUserFile(sub); err != nil {
					return err
				}
			}
			continue
		}
		fv, err := prop.assign(k, v)
		if err != nil {
			return err
		}
		prop.File = fv.Interface()
		if prop.Env == nil {
			prop.Ptr.Set(fv)
		}
	}
	return nil
}

func (config *Config) GetMap() map[string]any {
	m := make(map[string]any)
	for k, v := range config.propsMap {
		if v.props != nil {
			if vv := v.GetMap(); vv != nil {
				m[k] = vv
			}
		} else if v.GetValue() != nil {
			m[k] = v.GetValue()
		}
	}
	if len(m) > 0 {
		return m
	}
	return nil
}

var regexPureNumber = regexp.MustCompile(`^\d+$`)

func (config *Config) assign(k string, v any) (target reflect.Value, err error) {
	ft := config.Ptr.Type()
	source := reflect.ValueOf(v)
	if ft == durationType {
		target = reflect.New(ft).Elem()
		switch {
		case !source.IsValid() || source.IsZero():
			target.SetInt(0)
		case source.Type() == durationType:
			target.Set(source)
		default:
			s := fmt.Sprint(v)
			d, perr := time.ParseDuration(s)
			if perr != nil || regexPureNumber.MatchString(s) {
				return target, fmt.Errorf("config %s: invalid duration %q, add a unit such as 100ms, 10s, 4m, 1h", k, s)
			}
			target.SetInt(int64(d))
		}
		return
	}
	if ft.Kind() == reflect.String {
		target = reflect.New(ft).Elem()
		if v != nil {
			target.SetString(fmt.Sprint(v))
		}
		return
	}
	tmpStruct := reflect.StructOf([]reflect.StructField{
		{
			Name: "Value",
			Type: ft,
			Tag:  reflect.StructTag(fmt.Sprintf(`yaml:"%s"`, k)),
		},
	})
	tmpValue := reflect.New(tmpStruct)
	if v != nil {
		var out []byte
		if vv, ok := v.(string); ok {
			out = []byte(fmt.Sprintf("%s: %s", k, vv))
		} else {
			out, _ = yaml.Marshal(map[string]any{k: v})
		}
		if err = yaml.Unmarshal(out, tmpValue.Interface()); err != nil {
			return target, fmt.Errorf("config %s: %w", k, err)
		}
	}
	return tmpValue.Elem().Field(0), nil
}

// LoadFile reads a YAML document into a generic map.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf map[string]any
	if err = yaml.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return conf, nil
}

// Load fills target from its default tags, the YAML file at path (skipped
// when path is empty) and environment variables starting with prefix.
func Load(target any, path, prefix string) (*Config, error) {
	var c Config
	if err := c.Parse(target, prefix); err != nil {
		return nil, err
	}
	if path == "" {
		return &c, nil
	}
	conf, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &c, c.ParseUserFile(conf)
}
