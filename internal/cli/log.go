package cli

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "cli")
